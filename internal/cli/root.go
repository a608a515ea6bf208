// Package cli implements the command-line interface for geosync.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/fatih/color"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/config"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/metrics"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/notify"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/rawdata"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/weaviate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Store    *store.Store
	Registry *upsert.Registry
	Metrics  *metrics.Collector
	Archiver *rawdata.Archiver
	Weaviate *weaviate.Client // nil unless weaviate.url is set

	closers []func()
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// loadConfig reads --config, or the nearest geosync.toml, or the
// environment alone when no file exists
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path, err := config.FindConfig()
	if err != nil {
		return config.LoadEnv()
	}
	return config.Load(path)
}

// initContext initializes config, logger and store (no side effects wired)
func initContext() *cmdContext {
	cfg, err := loadConfig()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		st.Close()
		exitError("failed to prepare database: %v", err)
	}

	return &cmdContext{Config: cfg, Logger: cfg.Logger(), Store: st}
}

// initFullContext additionally wires notifications, the search index mirror,
// the raw data archive and the record services
func initFullContext() *cmdContext {
	c := initContext()
	if err := c.wire(context.Background()); err != nil {
		c.Close()
		exitError("%v", err)
	}
	return c
}

func (c *cmdContext) wire(ctx context.Context) error {
	cfg := c.Config
	c.Metrics = metrics.New()

	var notifiers notify.Multi
	if wn := notify.NewWebhookNotifier(&notify.WebhookConfig{
		URLs:       cfg.Webhook.URLs,
		Timeout:    cfg.WebhookTimeout(),
		MaxRetries: cfg.Webhook.MaxRetries,
	}, c.Logger); wn != nil {
		notifiers = append(notifiers, wn)
		c.closers = append(c.closers, wn.Wait)
		c.Logger.WithField("count", len(cfg.Webhook.URLs)).Info("webhooks configured")
	}
	if cfg.Redis.Addr != "" {
		client := notify.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		notifiers = append(notifiers, notify.NewRedisNotifier(client, cfg.Redis.ChannelPrefix))
		c.closers = append(c.closers, func() { client.Close() })
	}

	var mirror upsert.Mirror
	if cfg.Weaviate.URL != "" {
		client, err := weaviate.NewClient(cfg.Weaviate.URL)
		if err != nil {
			return err
		}
		c.Weaviate = client
		mirror = weaviate.NewMirror(client, c.Logger)
	}

	var blobs rawdata.BlobStore
	if cfg.S3.Bucket != "" {
		s3, err := rawdata.NewS3(ctx, rawdata.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.Prefix,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return err
		}
		blobs = s3
	}
	c.Archiver = rawdata.NewArchiver(c.Store, blobs, c.Logger)

	rules := cfg.EngineRules()
	retry := cfg.RetryPolicy()
	opts := upsert.Options{
		Rules:    &rules,
		Mirror:   mirror,
		Recorder: c.Metrics,
		Retry:    &retry,
		Logger:   c.Logger,
	}
	if len(notifiers) > 0 {
		opts.Notifier = notifiers
	}
	reg, err := upsert.NewRegistry(c.Store, opts)
	if err != nil {
		return err
	}
	c.Registry = reg
	return nil
}

// handler resolves the --kind flag
func (c *cmdContext) handler(kind string) upsert.Handler {
	h, err := c.Registry.Lookup(kind)
	if err != nil {
		exitError("%v", err)
	}
	return h
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "geosync",
	Short: "Geospatial feed import and record store",
	Long: `geosync imports geospatial feeds (GeoJSON trails, cycling routes, markets)
into a document store with change tracking, access roles, licensing and
push notifications.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to "+config.ConfigFile+" (default: search upwards)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// editInfo names the local user as the editor of CLI writes
func editInfo(source string) models.EditInfo {
	name := "geosync"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return models.EditInfo{Editor: name, Source: source}
}

// shortTime formats change dates in listings
const shortTime = "2006-01-02 15:04:05"

func printResult(res upsert.Result) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	switch {
	case res.Failed():
		red.Printf("error      %s: %s\n", res.ID, res.ErrorReason)
	case res.Created > 0:
		green.Printf("created    %s\n", res.ID)
	case res.Deleted > 0:
		yellow.Printf("deleted    %s\n", res.ID)
	case res.Unchanged():
		fmt.Printf("unchanged  %s\n", res.ID)
	default:
		yellow.Printf("updated    %s\n", res.ID)
	}
	if len(res.PushChannels) > 0 {
		fmt.Printf("           push: %v\n", res.PushChannels)
	}
}

func printDetail(d upsert.UpdateDetail) {
	fmt.Println()
	color.New(color.FgGreen).Printf("  created:   %d\n", d.Created)
	color.New(color.FgYellow).Printf("  updated:   %d\n", d.Updated)
	fmt.Printf("  unchanged: %d\n", d.Unchanged)
	if d.Deleted > 0 {
		color.New(color.FgYellow).Printf("  deleted:   %d\n", d.Deleted)
	}
	if d.Errors > 0 {
		color.New(color.FgRed).Printf("  errors:    %d\n", d.Errors)
	}
	if len(d.PushChannels) > 0 {
		fmt.Printf("  push:      %v\n", d.PushChannels)
	}
}
