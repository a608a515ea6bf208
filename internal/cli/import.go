package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/feed"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/rawdata"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a GeoJSON feed",
	Long: `Import a GeoJSON feature collection. Every feature becomes one record with
id urn:<identifier>:<type code>:<path code>; records of the source that the
feed no longer contains can be disabled or deleted with --sweep.

Examples:
  geosync import routes.geojson --source digiway --identifier euregio.routes
  geosync import mtb.json --source digiway --identifier mtb --sweep disable --archive`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

var (
	importKind          string
	importSource        string
	importIdentifier    string
	importTypeCode      string
	importPathCode      string
	importNameProperty  string
	importSRID          string
	importLicense       string
	importClosed        bool
	importTransactional bool
	importSweep         string
	importArchive       bool
)

func init() {
	f := importCmd.Flags()
	f.StringVar(&importKind, "kind", string(models.KindSpatialData), "Record kind to write")
	f.StringVar(&importSource, "source", "", "Data source of the feed (required)")
	f.StringVar(&importIdentifier, "identifier", "", "Feed identifier used in record ids (required)")
	f.StringVar(&importTypeCode, "type-code", feed.DefaultTypeCodeProperty, "Feature property holding the type code")
	f.StringVar(&importPathCode, "path-code", feed.DefaultPathCodeProperty, "Feature property holding the path code")
	f.StringVar(&importNameProperty, "name-property", "", "Feature property used as Shortname")
	f.StringVar(&importSRID, "srid", "4326", "Coordinate reference system of the feed (4326|3857)")
	f.StringVar(&importLicense, "license", "", "License of the feed data, e.g. CC0")
	f.BoolVar(&importClosed, "closed", false, "Mark the data as closed (restricted access roles)")
	f.BoolVar(&importTransactional, "transactional", false, "Write all records or none")
	f.StringVar(&importSweep, "sweep", string(upsert.SweepNone), "Handle records missing from the feed (none|disable|delete)")
	f.BoolVar(&importArchive, "archive", false, "Archive the raw feed before importing")
	_ = importCmd.MarkFlagRequired("source")
	_ = importCmd.MarkFlagRequired("identifier")
}

// importOptions configures one feed import
type importOptions struct {
	Feed     feed.Options
	Mode     upsert.Mode
	Sweep    upsert.SweepMode
	Archive  bool
	FileName string
	Edit     models.EditInfo
}

// importReport is the outcome of importFeed
type importReport struct {
	RawDataID *int64
	Batch     upsert.BatchResult
	Detail    upsert.UpdateDetail
	Swept     upsert.UpdateDetail
}

func runImport(cmd *cobra.Command, args []string) {
	mode := upsert.BestEffort
	if importTransactional {
		mode = upsert.Transactional
	}
	sweep, err := upsert.ParseSweepMode(importSweep)
	if err != nil {
		exitError("%v", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitError("failed to read feed: %v", err)
	}

	c := initFullContext()
	defer c.Close()
	h := c.handler(importKind)

	opts := importOptions{
		Feed: feed.Options{
			Identifier:       importIdentifier,
			Source:           importSource,
			TypeCodeProperty: importTypeCode,
			PathCodeProperty: importPathCode,
			NameProperty:     importNameProperty,
			SRID:             importSRID,
		},
		Mode:     mode,
		Sweep:    sweep,
		Archive:  importArchive,
		FileName: filepath.Base(args[0]),
		Edit:     editInfo("import"),
	}
	if importLicense != "" || importClosed {
		opts.Feed.License = &models.LicenseInfo{License: importLicense, ClosedData: importClosed}
	}

	report, err := importFeed(context.Background(), h, c.Archiver, data, opts)
	if err != nil {
		exitError("%v", err)
	}

	if report.RawDataID != nil {
		fmt.Printf("Archived feed as raw data %d\n", *report.RawDataID)
	}
	for _, res := range report.Batch.Results {
		if !res.Unchanged() {
			printResult(res)
		}
	}
	fmt.Printf("\nImported %d records from %s\n", report.Batch.TotalProcessed, args[0])
	printDetail(report.Detail)
	if sweep != upsert.SweepNone {
		fmt.Printf("\nSweep (%s):\n", sweep)
		printDetail(report.Swept)
	}
	if report.Detail.Errors > 0 {
		os.Exit(1)
	}
}

// importFeed archives, parses and writes a feed, then sweeps the records of
// its source that the feed no longer contains. The sweep is skipped when
// any record failed, so that a broken feed never disables good data.
func importFeed(ctx context.Context, h upsert.Handler, archiver *rawdata.Archiver, data []byte, opts importOptions) (*importReport, error) {
	records, err := feed.ParseGeoJSON(data, opts.Feed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	report := &importReport{}
	if opts.Archive && archiver != nil {
		payload := rawdata.Payload{
			Type:            string(h.Kind()),
			Source:          opts.Feed.Source,
			SourceInterface: opts.Feed.Identifier,
			SourceID:        opts.FileName,
			Format:          "geojson",
			Body:            data,
		}
		if opts.Feed.License != nil {
			payload.License = opts.Feed.License.License
		}
		id, err := archiver.Archive(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to archive feed: %w", err)
		}
		report.RawDataID = &id
	}

	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	req := upsert.Request{
		Info:      models.DataInfo{Operation: models.OperationCreateAndUpdate, SaveChangesToDB: true},
		Edit:      opts.Edit,
		Compare:   models.CompareConfig{CompareData: true, CompareImages: true},
		RawDataID: report.RawDataID,
	}
	batch, err := h.UpsertBatchJSON(ctx, body, req, opts.Mode)
	if err != nil {
		return nil, err
	}
	report.Batch = batch
	report.Detail = upsert.DetailOf(batch)

	if opts.Sweep == upsert.SweepNone || report.Detail.Errors > 0 {
		return report, nil
	}
	seen := make([]string, 0, len(batch.Results))
	for _, res := range batch.Results {
		seen = append(seen, res.ID)
	}
	swept, err := h.Sweep(ctx, upsert.SweepRequest{
		Source:           opts.Feed.Source,
		SeenIDs:          seen,
		Mode:             opts.Sweep,
		ClearPublishedOn: true,
		Edit:             opts.Edit,
	})
	if err != nil {
		return report, fmt.Errorf("failed to sweep %s: %w", opts.Feed.Source, err)
	}
	report.Swept = swept
	return report, nil
}
