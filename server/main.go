package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/internal/auth/oidc"
	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/services"
	"github.com/devilmonastery/sessiongate/internal/pkg/idgen"
	"github.com/devilmonastery/sessiongate/internal/pkg/logger"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/handlers"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/session"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		forceVersion  int
		configPath    string
		logLevel      string
		logFile       string
		logToStderr   bool
		alsoLogStderr bool
		logFormat     string
	)

	cmd := &cobra.Command{
		Use:   "sessiongate",
		Short: "sessiongate login backend",
		Long:  "Exchanges OIDC logins for local users and signed session cookies",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupServerLogging(logLevel, logFile, logToStderr, alsoLogStderr, logFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags given on the command line win over the config file's logging section
			configureLogging := func(cfg *config.Config) error {
				level, format := logLevel, logFormat
				if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
					level = cfg.Logging.Level
				}
				if !cmd.Flags().Changed("log-format") && cfg.Logging.Format != "" {
					format = cfg.Logging.Format
				}
				return setupServerLogging(level, logFile, logToStderr, alsoLogStderr, format)
			}
			return runServer(cmd.Context(), configPath, forceVersion, configureLogging)
		},
		SilenceUsage: true,
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force sqlite migration version (use to fix dirty migration state)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional)")

	// Add logging flags
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr; \"default\" picks a per-user path)")
	cmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false, "Log to stderr (default behavior unless --log-file specified)")
	cmd.PersistentFlags().BoolVar(&alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	// Add subcommands
	cmd.AddCommand(newTokenCommand(&configPath))
	cmd.AddCommand(newUserCommand(&configPath))

	return cmd
}

// setupServerLogging configures the global logger for the server
func setupServerLogging(logLevel, logFile string, logToStderr, alsoLogStderr bool, logFormat string) error {
	if logFile == "default" {
		logFile = logger.GetDefaultLogFile("server")
	}

	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	// Set as default logger
	slog.SetDefault(globalLogger)

	return nil
}

func runServer(ctx context.Context, configPath string, forceVersion int, configureLogging func(*config.Config) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := slog.Default().With("component", "server")
	log.Info("Starting server initialization")

	if err := idgen.Initialize(idgen.DefaultNodeID); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := configureLogging(cfg); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	log = slog.Default().With("component", "server")

	if err := cfg.Auth.Provider.Validate(); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	log.Info("Provider configured", "provider", cfg.Auth.Provider.String(), "capture_tokens", cfg.Auth.Provider.CaptureTokens)

	if forceVersion >= 0 {
		return forceMigration(cfg, forceVersion)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	adapter, err := oidc.NewAdapter(cfg.Auth.Provider)
	if err != nil {
		return err
	}

	client, err := oidc.NewClient(ctx, cfg.Auth.Provider)
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(cfg.Auth.SessionSecret, cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	resolver := services.NewIdentityService(st.Users)
	jwtManager := newJWTManager(cfg)

	h := handlers.New(handlers.Deps{
		Config:    cfg,
		Adapter:   adapter,
		Exchanger: client,
		Resolver:  resolver,
		Tokens:    jwtManager,
		Sessions:  sessions,
		Health:    st.Health,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting",
			"address", srv.Addr,
			"environment", cfg.Environment,
			"store", cfg.Store.Backend,
			"token_lifetime", jwtManager.TokenDuration().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

func newJWTManager(cfg *config.Config) *auth.JWTManager {
	return auth.NewJWTManager(
		cfg.Auth.JWT.Secret,
		auth.ParseExpiry(cfg.Auth.JWT.Expiration),
		auth.WithIssuer(cfg.Auth.JWT.Issuer),
	)
}
