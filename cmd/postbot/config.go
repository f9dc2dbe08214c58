package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postbot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var allowNoToken bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Parse and validate the config file, including POSTBOT_* overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.ParseBytes(cfgPath, data)
			if err != nil {
				return err
			}
			if !allowNoToken {
				if err := config.ValidateForRun(cfg); err != nil {
					return err
				}
			}
			printSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowNoToken, "allow-no-token", false, "accept a config without telegram.token")
	return cmd
}

func printSummary(w io.Writer, cfg *config.Config) {
	driver := strings.TrimSpace(cfg.Storage.Driver)
	if driver == "" {
		driver = "memory"
	}
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = "default"
	}
	fmt.Fprintln(w, "config ok")
	fmt.Fprintf(w, "  owners:    %d\n", len(cfg.Telegram.OwnerUserIDs))
	fmt.Fprintf(w, "  storage:   %s\n", driver)
	fmt.Fprintf(w, "  scheduler: enabled=%t timezone=%s\n", cfg.Scheduler.IsEnabled(), tz)
	fmt.Fprintf(w, "  ops:       enabled=%t pprof=%t\n", cfg.Ops.Enabled, cfg.Ops.Pprof)
}
