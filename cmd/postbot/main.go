package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Daily schedules run in a named zone; embed the database for hosts
	// without /usr/share/zoneinfo.
	_ "time/tzdata"
)

var cfgPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "postbot",
		Short:         "Telegram bot that posts one draft to many channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
