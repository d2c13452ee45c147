package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	format := config.ShowFormatText
	if cc.Flags.JSON {
		format = config.ShowFormatJSON
	}

	if err := config.Show(cc.Cfg, os.Stdout, format); err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}

	return nil
}
