// Package main provides the hackathon manager server CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bcnelson/hackathon-manager/internal/api"
	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/config"
	"github.com/bcnelson/hackathon-manager/internal/logging"
	"github.com/bcnelson/hackathon-manager/internal/metrics"
	"github.com/bcnelson/hackathon-manager/internal/seed"
	"github.com/bcnelson/hackathon-manager/internal/service"
	"github.com/bcnelson/hackathon-manager/internal/storage"
	"github.com/bcnelson/hackathon-manager/internal/storage/memory"
	"github.com/bcnelson/hackathon-manager/internal/storage/sql"
	"github.com/bcnelson/hackathon-manager/internal/web"
)

var rootCmd = &cobra.Command{
	Use:   "hackathon-manager",
	Short: "Hackathon Manager - ideas, votes and teams for a hackathon",
	Long: `Hackathon Manager collects project ideas, lets participants vote on
approved projects and form groups that claim them.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), sql.Migrate)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), sql.MigrationStatus)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Preload ideas and projects from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

// openStore opens the configured store, creating the SQLite data directory
// when needed.
func openStore(cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	if cfg.Database.InMemory() {
		log.Warn("using the in-memory store; all data is lost on restart")
		return memory.New(), nil
	}

	if cfg.Database.Driver == "sqlite3" {
		if err := ensureDataDir(cfg.Database.DSN); err != nil {
			return nil, err
		}
	}
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Info("database initialized", zap.String("driver", cfg.Database.Driver))
	return store, nil
}

func ensureDataDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func withDatabase(ctx context.Context, fn func(context.Context, *sqlx.DB, string) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if cfg.Database.InMemory() {
		return errors.New("migrations apply to SQL databases only; set DB_DRIVER")
	}
	if cfg.Database.Driver == "sqlite3" {
		if err := ensureDataDir(cfg.Database.DSN); err != nil {
			return err
		}
	}
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db, cfg.Database.Driver)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	file, err := seed.LoadFile(args[0])
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(store, log, service.OptionsFromConfig(cfg))
	res, err := seed.Apply(cmd.Context(), svc, log, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d ideas and %d projects, skipped %d existing\n",
		res.IdeasCreated, res.ProjectsCreated, res.Skipped)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(store, log, service.OptionsFromConfig(cfg))

	webOpts, err := webOptions(ctx, cfg, log)
	if err != nil {
		return err
	}
	webHandler, err := web.NewRouter(svc, log, webOpts)
	if err != nil {
		return fmt.Errorf("create web router: %w", err)
	}

	separateMetrics := cfg.Metrics.Enabled && cfg.Metrics.Addr != ""
	router := api.NewRouter(svc, log, webHandler, api.Options{
		Sessions:     webOpts.Sessions,
		ServeMetrics: cfg.Metrics.Enabled && !separateMetrics,
		TrustProxy:   cfg.Server.TrustProxy,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var metricsServer *metrics.Server
	if separateMetrics {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting hackathon manager", zap.String("addr", "http://"+cfg.Server.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server forced to shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// webOptions builds the session, login and form settings of the front end.
func webOptions(ctx context.Context, cfg *config.Config, log *zap.Logger) (web.Options, error) {
	sessionKey, err := cfg.Session.GetSecretBytes()
	if err != nil {
		return web.Options{}, err
	}
	sessions, err := auth.NewSessionManager(sessionKey, cfg.Session.Duration, cfg.Session.Secure)
	if err != nil {
		return web.Options{}, fmt.Errorf("create session manager: %w", err)
	}

	opts := web.Options{
		Sessions:       sessions,
		Admins:         auth.NewAdminPolicy(cfg.Admin.GetEmails(), cfg.OIDC.AdminGroup),
		LogoutURL:      cfg.OIDC.LogoutURL,
		DevLogin:       cfg.Session.DevLogin,
		SecureOnly:     cfg.Session.Secure,
		IdeasPerMinute: cfg.RateLimit.IdeasPerMinute,
		IdeaBurst:      cfg.RateLimit.Burst,
	}

	if cfg.CSRF.Enabled() {
		if opts.CSRFKey, err = cfg.CSRF.GetKeyBytes(); err != nil {
			return web.Options{}, err
		}
	} else {
		log.Warn("CSRF protection is disabled; set CSRF_KEY")
	}

	if cfg.Session.DevLogin {
		log.Warn("development login is enabled; anyone can sign in as any user")
	}

	if cfg.OIDC.Enabled {
		provider, err := auth.NewOIDCProvider(ctx,
			cfg.OIDC.IssuerURL,
			cfg.OIDC.ClientID,
			cfg.OIDC.ClientSecret,
			cfg.OIDC.RedirectURL,
			cfg.OIDC.GetScopes(),
			cfg.OIDC.GetAllowedDomains(),
		)
		if err != nil {
			return web.Options{}, fmt.Errorf("initialize OIDC provider: %w", err)
		}
		states, err := auth.NewStateStore(sessionKey, cfg.Session.Secure)
		if err != nil {
			return web.Options{}, fmt.Errorf("create OIDC state store: %w", err)
		}
		opts.OIDC = provider
		opts.States = states
		log.Info("OIDC login enabled", zap.String("issuer", cfg.OIDC.IssuerURL))
	}

	return opts, nil
}
