package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.toml"

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradiecrm",
	Short: "tradiecrm - job intake and AI assistant for trades businesses",
	Long: `tradiecrm turns free-text job requests into confirmable job drafts and
runs a tool-calling assistant over the CRM of a trades business.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the TOML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(seedCmd)
}
