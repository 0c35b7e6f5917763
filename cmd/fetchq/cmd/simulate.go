// =============================================================================
// SIMULATE COMMAND - OFFLINE FETCH CYCLES
// =============================================================================
//
// WHAT IS THIS?
// Runs fetch cycles against the assignment in a config file without any
// broker. Every planned partition "returns" --records records unless it is
// listed with --empty, in which case it never returns data.
//
// With orders partitions [0, 1, 2] and payments [0] assigned:
//
//   $ fetchq simulate --config fetchq.yaml --cycles 3 --max-partitions 2
//   CYCLE 1
//   BLOCK  TOPIC   PARTITIONS
//   0      orders  0@0, 1@0
//   CYCLE 2
//   BLOCK  TOPIC     PARTITIONS
//   0      orders    2@0
//   1      payments  0@0
//   ...
//
// =============================================================================

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fetchq/internal/config"
	"fetchq/internal/fetcher"
	"fetchq/pkg/fetchorder"
)

var (
	simulateConfigFlag        string
	simulateCyclesFlag        int
	simulateMaxPartitionsFlag int
	simulateRecordsFlag       int64
	simulateEmptyFlag         []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run fetch cycles offline",
	Long: `Run fetch cycles against a config file's assignment and print each plan.

Examples:
  fetchq simulate --config fetchq.yaml --cycles 5
  fetchq simulate --config fetchq.yaml --max-partitions 2 --empty orders-1
  fetchq simulate --config fetchq.yaml -o json`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simulateConfigFlag, "config", "c", "fetchq.yaml", "Config file path")
	simulateCmd.Flags().IntVarP(&simulateCyclesFlag, "cycles", "n", 3, "Number of fetch cycles")
	simulateCmd.Flags().IntVar(&simulateMaxPartitionsFlag, "max-partitions", -1,
		"Partitions per fetch (default: fetcher.max_partitions_per_request)")
	simulateCmd.Flags().Int64Var(&simulateRecordsFlag, "records", 1, "Records returned per served partition")
	simulateCmd.Flags().StringSliceVar(&simulateEmptyFlag, "empty", nil,
		"Partitions that never return data, as topic-partition")
}

// SimulatedCycle is one cycle of simulate output.
type SimulatedCycle struct {
	Cycle int                     `json:"cycle" yaml:"cycle"`
	Plan  fetcher.FetchPlan       `json:"plan" yaml:"plan"`
	Order []fetcher.PartitionView `json:"order" yaml:"order"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(simulateConfigFlag)
	if err != nil {
		return handleError(err)
	}
	if err := cfg.Validate(); err != nil {
		return handleError(err)
	}
	if simulateCyclesFlag < 0 || simulateRecordsFlag < 0 {
		return handleError(fmt.Errorf("--cycles and --records must not be negative"))
	}

	empty := make(map[fetchorder.TopicPartition]bool, len(simulateEmptyFlag))
	for _, s := range simulateEmptyFlag {
		tp, err := parseTopicPartition(s)
		if err != nil {
			return handleError(err)
		}
		empty[tp] = true
	}

	limit := cfg.Fetcher.MaxPartitionsPerRequest
	if simulateMaxPartitionsFlag >= 0 {
		limit = simulateMaxPartitionsFlag
	}

	session, err := fetcher.NewSession(fetcher.Config{
		Logger:                  logger,
		MaxPartitionsPerRequest: limit,
	})
	if err != nil {
		return handleError(err)
	}
	if err := session.Assign(cfg.PartitionAssignment()); err != nil {
		return handleError(err)
	}

	fetch := func(plan fetcher.FetchPlan) map[fetchorder.TopicPartition]int64 {
		out := make(map[fetchorder.TopicPartition]int64)
		for _, b := range plan.Blocks {
			for _, p := range b.Partitions {
				tp := fetchorder.TopicPartition{Topic: b.Topic, Partition: p.Partition}
				if empty[tp] || simulateRecordsFlag == 0 {
					continue
				}
				out[tp] = p.Offset + simulateRecordsFlag
			}
		}
		return out
	}

	cycles := make([]SimulatedCycle, 0, simulateCyclesFlag)
	for i := 1; i <= simulateCyclesFlag; i++ {
		plan, err := session.Cycle(fetch)
		if err != nil {
			return handleError(fmt.Errorf("cycle %d: %w", i, err))
		}
		cycles = append(cycles, SimulatedCycle{Cycle: i, Plan: plan, Order: session.Partitions()})
	}

	if !formatter.IsTable() {
		return formatter.Format(cycles)
	}
	for _, c := range cycles {
		fmt.Fprintf(cmd.OutOrStdout(), "CYCLE %d\n", c.Cycle)
		if err := formatter.FormatPlan(&c.Plan); err != nil {
			return handleError(err)
		}
	}
	return nil
}

// parseTopicPartition parses "topic-N", splitting on the last dash so topics
// may contain dashes themselves.
func parseTopicPartition(s string) (fetchorder.TopicPartition, error) {
	i := strings.LastIndex(s, "-")
	if i <= 0 {
		return fetchorder.TopicPartition{}, fmt.Errorf("invalid partition %q: want topic-partition", s)
	}
	n, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return fetchorder.TopicPartition{}, fmt.Errorf("invalid partition %q: %w", s, err)
	}
	return fetchorder.NewTopicPartition(s[:i], int32(n))
}
