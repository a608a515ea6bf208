package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/api"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/weaviate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the geosync HTTP API",
	Long: `Run the geosync HTTP API.

Writes require a bearer token signed with server.jwt_secret
(env: GEOSYNC_SERVER_JWT_SECRET). Use 'geosync token' to issue one.

Examples:
  geosync serve
  geosync serve --addr 0.0.0.0:8080`,
	Run: runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an API token",
	Long: `Issue a bearer token for the HTTP API signed with server.jwt_secret.

Roles are either permission claims (<Endpoint>_<Action>[_<condition>], e.g.
SpatialData_Update_Source=digiway), access roles (e.g. IDM) or admin.

Examples:
  geosync token importer --role admin
  geosync token partner --role IDM --role SpatialData_Read --ttl 24h`,
	Args: cobra.ExactArgs(1),
	Run:  runToken,
}

var (
	serveAddr  string
	tokenRoles []string
	tokenTTL   time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	tokenCmd.Flags().StringArrayVar(&tokenRoles, "role", nil, "Role to grant, repeat for multiple")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: no expiry)")
	rootCmd.AddCommand(tokenCmd)
}

// ExecuteServer runs the serve command with the process arguments
func ExecuteServer() error {
	rootCmd.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	return rootCmd.Execute()
}

func runServe(_ *cobra.Command, _ []string) {
	c := initFullContext()
	defer c.Close()
	cfg := c.Config
	logger := c.Logger

	if cfg.Server.JWTSecret == "" {
		exitError("server.jwt_secret is required to serve the API")
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if c.Weaviate != nil {
		checkWeaviate(c.Weaviate, logger)
	}

	router := api.NewRouter(api.Config{
		Registry:      c.Registry,
		Tokens:        api.TokenService{Secret: []byte(cfg.Server.JWTSecret), Issuer: "geosync"},
		Logger:        logger,
		Metrics:       c.Metrics,
		Health:        c.Store.Ping,
		CompareIgnore: cfg.Engine.CompareIgnore,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "driver": cfg.Database.Driver}).Info("starting geosync server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	logger.Info("server stopped")
}

func runToken(_ *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitError("%v", err)
	}
	if cfg.Server.JWTSecret == "" {
		exitError("server.jwt_secret is not configured")
	}

	ts := api.TokenService{Secret: []byte(cfg.Server.JWTSecret), Issuer: "geosync", Duration: tokenTTL}
	tok, err := ts.Sign(args[0], tokenRoles)
	if err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Println(tok)
}

// checkWeaviate logs whether the search index is reachable
func checkWeaviate(client *weaviate.Client, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		logger.WithError(err).Warn("search index unreachable, records will not be mirrored until it is back")
		return
	}
	version, err := client.GetServerVersion(ctx)
	if err != nil {
		logger.WithError(err).Warn("could not detect weaviate version")
		return
	}
	logger.WithField("version", version.Version).Info("search index connected")
}
