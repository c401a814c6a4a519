package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/todo_service/internal/config"
	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/platform/migrations"
	"github.com/R3E-Network/todo_service/internal/runtime"
)

var (
	version = "dev"
	commit  = "none"
)

// CLI flags
var (
	configPath  string
	envFile     string
	migrateOnUp bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "todo-service",
		Short:        "REST service for users and their to-do tasks",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set "+config.FileEnv+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  serve,
	}
	serveCmd.Flags().BoolVar(&migrateOnUp, "migrate", false, "apply pending migrations before serving")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(m *migrations.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(m *migrations.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(m *migrations.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
					return nil
				})
			},
		},
	)

	rootCmd.AddCommand(serveCmd, migrateCmd, &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "todo-service %s (commit: %s)\n", version, commit)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New("todo-service", cfg.Logging), nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	if migrateOnUp {
		if err := runMigrations(ctx, cfg, log, func(m *migrations.Migrator) error { return m.Up() }); err != nil {
			return err
		}
	}

	app, err := runtime.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to start")
		return err
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
	}

	log.Info("shutting down")
	if err := app.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
		return err
	}
	return runErr
}

func withMigrator(ctx context.Context, fn func(*migrations.Migrator) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return runMigrations(ctx, cfg, log, fn)
}

func runMigrations(ctx context.Context, cfg config.Config, log *logging.Logger, fn func(*migrations.Migrator) error) error {
	db, err := connectivity.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	m, err := migrations.New(db.DB, log.Named("migrate"))
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.WithError(err).Warn("failed to close migrator")
		}
	}()
	return fn(m)
}
