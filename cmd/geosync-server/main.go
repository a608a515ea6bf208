// Command geosync-server runs the geosync HTTP API.
package main

import (
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/cli"
)

func main() {
	if err := cli.ExecuteServer(); err != nil {
		os.Exit(1)
	}
}
