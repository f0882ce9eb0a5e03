package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pairchat/pairchat-server/internal/app"
	"github.com/pairchat/pairchat-server/internal/config"
	"github.com/pairchat/pairchat-server/internal/log"
	"github.com/pairchat/pairchat-server/internal/store/sqlite"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "pairchat-server",
		Short: "Two-party chat backend with realtime delivery",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")

			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting pairchat server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	var username, email string
	useradd := &cobra.Command{
		Use:   "useradd",
		Short: "Provision a user directory row",
		Long:  "Adds a user to the directory. Credentials and tokens are handled by the external identity service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("info")

			cfg, _, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			user, err := st.CreateUser(cmd.Context(), username, email)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), user.ID.String())
			return nil
		},
	}
	useradd.Flags().StringVar(&username, "username", "", "username (required)")
	useradd.Flags().StringVar(&email, "email", "", "email (required)")
	_ = useradd.MarkFlagRequired("username")
	_ = useradd.MarkFlagRequired("email")

	root.AddCommand(serve, useradd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
