// Package app provides the command tree of the roster-mirror daemon.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wachbuch/roster-mirror/internal/config"
	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "roster-mirrord",
	DisableAutoGenTag: true,
	Short:             "Local mirror of a remote duty-roster service",
	Long: `roster-mirrord keeps a local, encrypted mirror of a remote duty-roster
service: it polls the public roster in the background, caches it across
restarts and survives the remote being temporarily unreachable.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command of the daemon.
func NewRootCmd() *cobra.Command {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("unstructured-logs", false, "Use human-readable console logs instead of JSON")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	if err := viper.BindPFlag("unstructured-logs", rootCmd.PersistentFlags().Lookup("unstructured-logs")); err != nil {
		logger.Errorf("Error binding unstructured-logs flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			logger.Errorf("Error retrieving format flag: %v", err)
			return
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				logger.Errorf("Error formatting version info as JSON: %v", err)
				return
			}
			fmt.Println(string(output))
		} else {
			fmt.Printf("roster-mirrord %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
