// Package commands implements the objectstored CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "objectstored",
	Short: "Multi-tenant object storage server",
	Long: `objectstored serves a native key/value HTTP API and an
S3-compatible HTTP API subset over a shared append-only chunk store and
metadata index.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (default: ./config.yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag's value.
func GetConfigFile() string {
	return configFile
}
