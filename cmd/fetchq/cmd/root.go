// =============================================================================
// ROOT COMMAND - CLI ENTRY POINT AND GLOBAL FLAGS
// =============================================================================
//
// GLOBAL FLAGS:
//   --server, -s    Server URL (default: http://localhost:8080)
//   --output, -o    Output format: table, json, yaml (default: table)
//   --timeout       Request timeout in seconds (default: 30)
//   --log-format    Log format: pretty, json, text (default: pretty)
//   --verbose, -v   Debug logging
//
// SUBCOMMANDS:
//   serve       Run the admin API server
//   simulate    Run fetch cycles offline against a config file
//   partitions  Show a server's fetch order
//   assign      Replace a server's assignment
//   plan        Show a server's next fetch plan
//   served      Record a fetch and rotate a partition to the back
//   skip        Rotate a partition to the back without data
//   revoke      Drop a partition from a server's assignment
//   validate    Validate a config file
//   version     Show version information
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"fetchq/internal/cli"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

var (
	serverFlag    string
	outputFlag    string
	timeoutFlag   int
	logFormatFlag string
	verboseFlag   bool

	client    *cli.Client
	formatter *cli.Formatter
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fetchq",
	Short: "Fair partition fetch ordering",
	Long: `fetchq keeps the order in which a consumer's assigned partitions are
fetched. Partitions that returned data move to the back so every partition
gets its turn.

Use "fetchq [command] --help" for more information about a command.`,
	PersistentPreRunE: initialize,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "",
		"Server URL (env: "+cli.EnvServer+")")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table",
		"Output format: table, json, yaml")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 30,
		"Request timeout in seconds")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "pretty",
		"Log format: pretty, json, text")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(servedCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// initialize sets up the logger, HTTP client and formatter before each command.
func initialize(cmd *cobra.Command, args []string) error {
	var err error
	logger, err = newLogger(logFormatFlag, verboseFlag)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	client = cli.NewClient(cli.ClientConfig{
		ServerURL: cli.ResolveServer(serverFlag),
		Timeout:   time.Duration(timeoutFlag) * time.Second,
	})

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	formatter = cli.NewFormatter(format)
	return nil
}

func newLogger(format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	switch format {
	case "pretty", "":
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if s, ok := a.Value.Any().(string); ok && s == "" {
					return slog.Attr{}
				}
				return a
			},
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (supported: pretty, json, text)", format)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// getContext returns a context with timeout.
func getContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeoutFlag)*time.Second)
}

// handleError prints an error and returns it.
func handleError(err error) error {
	cli.PrintError("%v", err)
	return err
}
