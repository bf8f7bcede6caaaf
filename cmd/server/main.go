package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beep-industries/admin/internal/app"
	"github.com/beep-industries/admin/internal/config"
	"github.com/beep-industries/admin/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	var envFile string

	loadConfig := func() (config.Config, error) {
		cfg := config.Load(envFile)
		logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})
		return cfg, cfg.Validate()
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin dashboard behind the Keycloak gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: authority=%s client_id=%s role_client_id=%s redis=%t database=%t\n",
				cfg.KeycloakAuthority,
				cfg.KeycloakClientID,
				cfg.KeycloakRoleClientID,
				cfg.RedisAddr != "",
				cfg.DatabaseDSN != "",
			)
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "admin-gate",
		Short:         "Admin dashboard server with a Keycloak OIDC gate",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file applied under the process environment")
	root.AddCommand(serveCmd, checkCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "admin-gate:", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{
				"error": err,
			})
		}
	}()

	logger.Info("admin-gate started", map[string]any{
		"port": cfg.AppPort,
	})

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("admin-gate stopped cleanly", nil)
	return nil
}
