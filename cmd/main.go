package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/travelquiz/internal/config"
	"github.com/victornm/travelquiz/internal/server"
	"github.com/victornm/travelquiz/internal/store/postgres"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Load .env failed: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "travelquiz",
		Short:        "Real-time multiplayer travel trivia server",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to YAML config")
	cmd.AddCommand(newServeCmd(&configPath), newMigrateCmd(&configPath))
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			go s.Start()

			<-shutdown
			s.Shutdown()
			return nil
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if c.Postgres.Addr == "" {
				return fmt.Errorf("postgres.addr not configured")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := postgres.Migrate(ctx, c.Postgres.DSN()); err != nil {
				return err
			}

			slog.InfoContext(ctx, "migrate: done")
			return nil
		},
	}
}

func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
