package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/config"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create geosync.toml and the database",
	Long: `Initialize geosync in the current directory.
This writes a default geosync.toml and creates the record tables, the audit
trail and the raw data archive.`,
	Run: runInit,
}

var (
	initDriver string
	initDSN    string
)

func init() {
	initCmd.Flags().StringVar(&initDriver, "driver", "sqlite", "Database driver (sqlite|postgres)")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "Database DSN (default: "+config.DatabaseFile+" for sqlite)")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	dir, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(dir, initDriver, initDSN)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	fmt.Printf("Wrote %s\n", cfg.Path())

	st, err := store.New(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(ctx); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("Initialized %s database\n", cfg.Database.Driver)
	fmt.Printf("\nRun 'geosync import <file> --source <source> --identifier <id>' to load a feed.\n")
}
