// =============================================================================
// FETCHQ - MAIN ENTRY POINT
// =============================================================================
//
// WHAT IS THIS?
// The fetchq binary: a fair partition fetch-order service plus the CLI that
// talks to it.
//
// USAGE:
//   fetchq [command] [flags]
//
// EXAMPLES:
//   fetchq serve --config fetchq.yaml         # Run the admin API
//   fetchq simulate --config fetchq.yaml      # Dry-run fetch cycles offline
//   fetchq assign -f assignment.yaml          # Push a new assignment
//   fetchq partitions -o json                 # Show the fetch order
//   fetchq plan                               # Show the next fetch plan
//
// CONFIGURATION:
//   Env vars: FETCHQ_SERVER
//
// =============================================================================

package main

import (
	"os"

	"fetchq/cmd/fetchq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
