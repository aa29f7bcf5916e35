package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/relay/cmd/relay/modules"
	dbembed "github.com/memohai/relay/db"
	"github.com/memohai/relay/internal/boot"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/db"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay chat platform commands to a streaming completion backend",
		Long: "relay receives Slack, Discord and Telegram webhooks, asks the completion backend " +
			"and streams the answer back into the conversation.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				_ = os.Setenv("CONFIG_PATH", configPath)
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $CONFIG_PATH or ./config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and the relay dispatcher",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Starting relay %s\n", version.GetInfo())
			fx.New(
				modules.InfraModule,
				modules.RelayModule,
				modules.ServerModule,
				fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
					l := &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
					l.UseLogLevel(slog.LevelDebug)
					return l
				}),
			).Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate {up|down|version|force N}",
		Short:     "Manage the PostgreSQL schema",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{db.MigrateUp, db.MigrateDown, db.MigrateVersion, db.MigrateForce},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			rc, err := boot.ProvideRuntimeConfig(cfg)
			if err != nil {
				return err
			}
			if strings.EqualFold(rc.StoreDriver, modules.DriverSQLite) {
				logger.Info("sqlite store manages its own schema, nothing to migrate")
				return nil
			}
			migrations, err := dbembed.Migrations()
			if err != nil {
				return err
			}
			return db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}

func versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (%s)\n", version.GetInfo(), info.GoVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
