// =============================================================================
// VERSION / VALIDATE COMMANDS
// =============================================================================
//
// USAGE:
//   fetchq version
//   fetchq validate --config fetchq.yaml
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"

	"fetchq/internal/cli"
	"fetchq/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show CLI version and, if reachable, server status.

Examples:
  fetchq version
  fetchq version -o json`,
	RunE: runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := &cli.VersionInfo{ClientVersion: cli.Version}

	ctx, cancel := getContext()
	health, err := client.Health(ctx)
	cancel()
	if err == nil {
		info.ServerStatus = health.Status
	}

	return formatter.FormatVersion(info)
}

var validateConfigFlag string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Check a config file and report every problem found.

Examples:
  fetchq validate --config fetchq.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFlag, "config", "c", "fetchq.yaml", "Config file path")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(validateConfigFlag)
	if err != nil {
		return handleError(err)
	}
	if err := cfg.Validate(); err != nil {
		return handleError(err)
	}
	cli.PrintSuccess("%s is valid (%d partitions assigned)", validateConfigFlag, cfg.PartitionAssignment().Len())
	return nil
}
