package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/exportappend/internal/config"
	"github.com/JonMunkholm/exportappend/internal/logging"
)

// app carries state shared by subcommands once the root pre-run has loaded it.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var envFiles []string

	cmd := &cobra.Command{
		Use:          "exportappend",
		Short:        "Append CSV exports to staging tables and merge them",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			n, err := config.LoadEnv(envFiles...)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			slog.Debug("configuration loaded", "env_files", n, "config", cfg.String())

			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "dotenv files to load when present")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newAppendCmd(a))
	cmd.AddCommand(newTablesCmd(a))
	return cmd
}
