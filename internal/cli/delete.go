package cli

import (
	"context"
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(1),
	Run:   runDelete,
}

var (
	deleteKind    string
	deleteReduced bool
	deleteAll     bool
)

func init() {
	deleteCmd.Flags().StringVar(&deleteKind, "kind", string(models.KindSpatialData), "Record kind")
	deleteCmd.Flags().BoolVar(&deleteReduced, "reduced", false, "Delete the reduced variant of the record")
	deleteCmd.Flags().BoolVar(&deleteAll, "include-reduced", false, "Also delete the reduced variant of a full record")
}

func runDelete(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()
	h := c.handler(deleteKind)

	res, err := h.Delete(context.Background(), args[0], upsert.DeleteRequest{
		Info:           models.DataInfo{Operation: models.OperationDelete, SaveChangesToDB: true},
		Edit:           editInfo("cli"),
		Reduced:        deleteReduced,
		IncludeReduced: deleteAll,
	})
	if err != nil {
		exitError("%v", err)
	}
	printResult(res)
	if res.Failed() {
		os.Exit(1)
	}
}
