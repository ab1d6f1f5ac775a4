package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/tradiecrm/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and manage tradiecrm configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and report every problem at once.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		if err := config.LoadEnvOptional(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Fprintf(out, "Configuration %s is invalid:\n", path)
			for _, e := range errs {
				fmt.Fprintf(out, "  - %v\n", e)
			}
			return fmt.Errorf("config validation failed: %d errors", len(errs))
		}

		fmt.Fprintf(out, "Configuration %s is valid\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
