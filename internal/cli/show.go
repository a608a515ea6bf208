package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored record",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

var changesCmd = &cobra.Command{
	Use:   "changes <id>",
	Short: "Show the change history of a record",
	Args:  cobra.ExactArgs(1),
	Run:   runChanges,
}

var (
	showKind     string
	showReduced  bool
	changesKind  string
	changesLimit int
)

func init() {
	showCmd.Flags().StringVar(&showKind, "kind", string(models.KindSpatialData), "Record kind")
	showCmd.Flags().BoolVar(&showReduced, "reduced", false, "Show the reduced variant")
	changesCmd.Flags().StringVar(&changesKind, "kind", string(models.KindSpatialData), "Record kind")
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "n", 20, "Number of entries to show")
}

func runShow(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()
	h := c.handler(showKind)

	rec, err := h.GetRecord(context.Background(), args[0], showReduced, nil)
	if errors.Is(err, store.ErrNotFound) {
		exitError("%s %s not found", h.Kind(), args[0])
	}
	if err != nil {
		exitError("%v", err)
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println(string(out))
}

func runChanges(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()
	h := c.handler(changesKind)

	entries, err := h.Changes(context.Background(), args[0], changesLimit)
	if err != nil {
		exitError("%v", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No changes recorded for %s\n", args[0])
		return
	}
	writeChanges(cmd.OutOrStdout(), entries)
}

func writeChanges(w io.Writer, entries []*models.RawChange) {
	yellow := color.New(color.FgYellow)
	for _, e := range entries {
		yellow.Fprintf(w, "change %d\n", e.ID)
		fmt.Fprintf(w, "Date:   %s\n", e.Date.Local().Format(shortTime))
		fmt.Fprintf(w, "Editor: %s (%s)\n", e.EditedBy, e.EditSource)
		if e.DataSource != "" {
			fmt.Fprintf(w, "Source: %s\n", e.DataSource)
		}
		if len(e.Changes) > 0 {
			fmt.Fprintf(w, "\n    %s\n", e.Changes)
		}
		fmt.Fprintln(w)
	}
}
