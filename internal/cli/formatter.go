// =============================================================================
// CLI OUTPUT FORMATTER - TABLE, JSON, YAML OUTPUT SUPPORT
// =============================================================================
//
// WHAT IS THIS?
// Output formatting for the fetchq CLI:
//   - Table (default): human-readable columns
//   - JSON: for scripting with jq
//   - YAML: round-trips into assignment files
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │  $ fetchq partitions                                                    │
//   │  #  TOPIC    PARTITION  OFFSET  FETCHES  LAST FETCHED                   │
//   │  0  orders   1          120     4        2024-01-01T00:00:05Z           │
//   │  1  payments 0          88      3        2024-01-01T00:00:04Z           │
//   │                                                                         │
//   │  $ fetchq plan -o json | jq '.blocks[].topic'                           │
//   │  "orders"                                                               │
//   │  "payments"                                                             │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// =============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"fetchq/internal/fetcher"
)

// Version is the fetchq release.
const Version = "0.3.0"

// VersionInfo is the payload of the version command.
type VersionInfo struct {
	ClientVersion string `json:"client_version" yaml:"client_version"`
	ServerStatus  string `json:"server_status,omitempty" yaml:"server_status,omitempty"`
}

// =============================================================================
// OUTPUT FORMAT
// =============================================================================

// OutputFormat represents the output format type.
type OutputFormat string

// Supported output formats
const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat parses an output format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return OutputTable, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", s)
	}
}

// =============================================================================
// FORMATTER
// =============================================================================

// Formatter handles output formatting for CLI commands.
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a new formatter with the specified format.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter sets the output writer (for testing).
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// IsTable reports whether output is human-readable tables.
func (f *Formatter) IsTable() bool {
	return f.format == OutputTable
}

// Format outputs data in the configured format.
func (f *Formatter) Format(data interface{}) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(data)
	case OutputYAML:
		return f.formatYAML(data)
	default:
		return fmt.Errorf("use specific table method for data type")
	}
}

func (f *Formatter) formatJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) formatYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.writer)
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

// structured writes data as JSON or YAML and reports whether it did.
func (f *Formatter) structured(data interface{}) (bool, error) {
	switch f.format {
	case OutputJSON:
		return true, f.formatJSON(data)
	case OutputYAML:
		return true, f.formatYAML(data)
	}
	return false, nil
}

// =============================================================================
// TABLE FORMATTING
// =============================================================================

// Table creates a new table writer.
func (f *Formatter) Table() *TableWriter {
	return &TableWriter{tw: tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)}
}

// TableWriter wraps tabwriter for convenient table output.
type TableWriter struct {
	tw      *tabwriter.Writer
	headers []string
}

// SetHeaders sets the table headers.
func (t *TableWriter) SetHeaders(headers ...string) {
	t.headers = headers
}

// WriteHeaders writes the headers row.
func (t *TableWriter) WriteHeaders() {
	if len(t.headers) == 0 {
		return
	}
	upper := make([]string, len(t.headers))
	for i, h := range t.headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(t.tw, strings.Join(upper, "\t"))
}

// WriteRow writes a single row.
func (t *TableWriter) WriteRow(values ...interface{}) {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(t.tw, strings.Join(strs, "\t"))
}

// Flush flushes the table writer.
func (t *TableWriter) Flush() error {
	return t.tw.Flush()
}

// =============================================================================
// SPECIFIC DATA TYPE FORMATTERS
// =============================================================================

// FormatPartitions outputs partitions in fetch order.
func (f *Formatter) FormatPartitions(views []fetcher.PartitionView) error {
	if ok, err := f.structured(views); ok {
		return err
	}

	table := f.Table()
	table.SetHeaders("#", "topic", "partition", "offset", "fetches", "last fetched")
	table.WriteHeaders()
	for i, v := range views {
		table.WriteRow(i, v.Topic, v.Partition, v.Offset, v.FetchCount, formatTime(v.LastFetched))
	}
	return table.Flush()
}

// FormatPlan outputs a fetch plan, one row per topic block.
func (f *Formatter) FormatPlan(plan *fetcher.FetchPlan) error {
	if ok, err := f.structured(plan); ok {
		return err
	}

	table := f.Table()
	table.SetHeaders("block", "topic", "partitions")
	table.WriteHeaders()
	for i, b := range plan.Blocks {
		table.WriteRow(i, b.Topic, formatPlanned(b.Partitions))
	}
	return table.Flush()
}

// FormatHealth outputs health status.
func (f *Formatter) FormatHealth(health *HealthResponse) error {
	if ok, err := f.structured(health); ok {
		return err
	}

	fmt.Fprintf(f.writer, "Status:     %s\n", health.Status)
	fmt.Fprintf(f.writer, "Partitions: %d\n", health.Partitions)
	fmt.Fprintf(f.writer, "Uptime:     %s\n", health.Uptime)
	fmt.Fprintf(f.writer, "Timestamp:  %s\n", health.Timestamp)
	return nil
}

// FormatVersion outputs version information.
func (f *Formatter) FormatVersion(info *VersionInfo) error {
	if ok, err := f.structured(info); ok {
		return err
	}

	fmt.Fprintf(f.writer, "Client Version: %s\n", info.ClientVersion)
	if info.ServerStatus != "" {
		fmt.Fprintf(f.writer, "Server Status:  %s\n", info.ServerStatus)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// formatPlanned renders partitions as "partition@offset".
func formatPlanned(partitions []fetcher.PlannedPartition) string {
	if len(partitions) == 0 {
		return "-"
	}
	parts := make([]string, len(partitions))
	for i, p := range partitions {
		parts[i] = fmt.Sprintf("%d@%d", p.Partition, p.Offset)
	}
	return strings.Join(parts, ", ")
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...interface{}) {
	fmt.Printf("✓ "+format+"\n", args...)
}
