package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nabbar/opcua-core/config"
)

func newConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or validate an opcuacored configuration file",
	}
	cfg.AddCommand(newConfigValidateCmd())
	return cfg
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file given by --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "config OK")
			return err
		},
	}
}
