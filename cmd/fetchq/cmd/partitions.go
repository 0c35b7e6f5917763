// =============================================================================
// SERVER COMMANDS - INSPECT AND DRIVE A RUNNING FETCHQ
// =============================================================================
//
// COMMANDS:
//   fetchq partitions                      Fetch order of a running server
//   fetchq plan                            Next fetch plan
//   fetchq assign -f assignment.yaml       Replace the assignment
//   fetchq served <topic-N> <next-offset>  Record data for a partition
//   fetchq skip <topic-N>                  Rotate a partition without data
//   fetchq revoke <topic-N>                Remove a partition
//
// =============================================================================

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fetchq/internal/cli"
	"fetchq/internal/config"
)

// =============================================================================
// PARTITIONS
// =============================================================================

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "Show the fetch order",
	Long: `Show a running server's partitions in fetch order.

Examples:
  fetchq partitions
  fetchq partitions -o json`,
	RunE: runPartitions,
}

func runPartitions(cmd *cobra.Command, args []string) error {
	ctx, cancel := getContext()
	defer cancel()

	views, err := client.Partitions(ctx)
	if err != nil {
		return handleError(err)
	}
	return formatter.FormatPartitions(views)
}

// =============================================================================
// PLAN
// =============================================================================

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the next fetch plan",
	Long: `Show the partitions the next fetch would request, grouped by topic.

Examples:
  fetchq plan
  fetchq plan -o yaml`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := getContext()
	defer cancel()

	plan, err := client.Plan(ctx)
	if err != nil {
		return handleError(err)
	}
	return formatter.FormatPlan(plan)
}

// =============================================================================
// ASSIGN
// =============================================================================

var assignFileFlag string

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Replace the assignment",
	Long: `Replace a running server's assignment with the partitions in a YAML file.

The file is a list of topic entries:

  - topic: orders
    partitions: [0, 1, 2]
    offset: 0
  - topic: payments
    partitions: [0]

Examples:
  fetchq assign -f assignment.yaml`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVarP(&assignFileFlag, "file", "f", "", "Assignment file (required)")
	_ = assignCmd.MarkFlagRequired("file")
}

func runAssign(cmd *cobra.Command, args []string) error {
	entries, err := config.LoadAssignment(assignFileFlag)
	if err != nil {
		return handleError(err)
	}

	ctx, cancel := getContext()
	defer cancel()

	views, err := client.Assign(ctx, config.BuildAssignment(entries))
	if err != nil {
		return handleError(err)
	}
	if formatter.IsTable() {
		cli.PrintSuccess("Assigned %d partitions", len(views))
	}
	return formatter.FormatPartitions(views)
}

// =============================================================================
// SERVED / SKIP / REVOKE
// =============================================================================

var servedCmd = &cobra.Command{
	Use:   "served <topic-partition> <next-offset>",
	Short: "Record data for a partition and rotate it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tp, err := parseTopicPartition(args[0])
		if err != nil {
			return handleError(err)
		}
		next, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return handleError(fmt.Errorf("invalid offset %q: %w", args[1], err))
		}

		ctx, cancel := getContext()
		defer cancel()

		if _, err := client.Served(ctx, tp, next); err != nil {
			return handleError(err)
		}
		cli.PrintSuccess("%s served, next offset %d", tp, next)
		return nil
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <topic-partition>",
	Short: "Rotate a partition without data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tp, err := parseTopicPartition(args[0])
		if err != nil {
			return handleError(err)
		}

		ctx, cancel := getContext()
		defer cancel()

		if err := client.Skip(ctx, tp); err != nil {
			return handleError(err)
		}
		cli.PrintSuccess("%s moved to the end", tp)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <topic-partition>",
	Short: "Remove a partition from the fetch order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tp, err := parseTopicPartition(args[0])
		if err != nil {
			return handleError(err)
		}

		ctx, cancel := getContext()
		defer cancel()

		if err := client.Revoke(ctx, tp); err != nil {
			return handleError(err)
		}
		cli.PrintSuccess("%s revoked", tp)
		return nil
	},
}
