// Command geosync imports geospatial feeds and manages stored records.
package main

import (
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
