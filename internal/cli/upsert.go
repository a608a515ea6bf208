package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/spf13/cobra"
)

var upsertCmd = &cobra.Command{
	Use:   "upsert <file>",
	Short: "Create or update records from a JSON file",
	Long: `Create or update records from a JSON file holding one record or an array
of records. Use - to read from stdin.

Examples:
  geosync upsert trail.json
  geosync upsert markets.json --kind market --transactional`,
	Args: cobra.ExactArgs(1),
	Run:  runUpsert,
}

var (
	upsertKind          string
	upsertTransactional bool
)

func init() {
	upsertCmd.Flags().StringVar(&upsertKind, "kind", string(models.KindSpatialData), "Record kind")
	upsertCmd.Flags().BoolVar(&upsertTransactional, "transactional", false, "Write all records or none (arrays only)")
}

func runUpsert(cmd *cobra.Command, args []string) {
	data, err := readInput(args[0])
	if err != nil {
		exitError("%v", err)
	}

	c := initFullContext()
	defer c.Close()
	h := c.handler(upsertKind)

	ctx := context.Background()
	req := upsert.Request{
		Info:    models.DataInfo{Operation: models.OperationCreateAndUpdate, SaveChangesToDB: true},
		Edit:    editInfo("cli"),
		Compare: models.CompareConfig{CompareData: true, CompareImages: true},
	}

	if !isArray(data) {
		res, err := h.UpsertJSON(ctx, data, req)
		if err != nil {
			exitError("%v", err)
		}
		printResult(res)
		if res.Failed() {
			os.Exit(1)
		}
		return
	}

	mode := upsert.BestEffort
	if upsertTransactional {
		mode = upsert.Transactional
	}
	out, err := h.UpsertBatchJSON(ctx, data, req, mode)
	if err != nil {
		exitError("%v", err)
	}
	for _, res := range out.Results {
		printResult(res)
	}
	detail := upsert.DetailOf(out)
	printDetail(detail)
	if detail.Errors > 0 {
		os.Exit(1)
	}
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// isArray reports whether a JSON document is an array
func isArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
