package flags

import "github.com/spf13/cobra"

const (
	// TotalFlagName exposes the batch size flag name.
	TotalFlagName = "total"
	// TotalFlagShorthand provides the shorthand for the batch size flag.
	TotalFlagShorthand = "n"
	// TotalFlagUsage describes the batch size flag purpose.
	TotalFlagUsage = "Number of tasks to create"
	// ConcurrencyFlagName exposes the concurrency flag name.
	ConcurrencyFlagName = "concurrency"
	// ConcurrencyFlagShorthand provides the shorthand for the concurrency flag.
	ConcurrencyFlagShorthand = "c"
	// ConcurrencyFlagUsage describes the concurrency flag purpose.
	ConcurrencyFlagUsage = "Maximum number of tasks running at once"
	// ProgressFlagName exposes the progress mode flag name.
	ProgressFlagName = "progress"
	// ProgressFlagUsage describes the progress mode flag purpose.
	ProgressFlagUsage = "Progress display (auto, bar, log, none)"
	// SummaryFormatFlagName exposes the summary format flag name.
	SummaryFormatFlagName = "summary-format"
	// SummaryFormatFlagUsage describes the summary format flag purpose.
	SummaryFormatFlagUsage = "Summary output format (text, yaml)"
	// StatusAddressFlagName exposes the status endpoint flag name.
	StatusAddressFlagName = "status-address"
	// StatusAddressFlagUsage describes the status endpoint flag purpose.
	StatusAddressFlagUsage = "Serve run status over HTTP on this address (for example 127.0.0.1:8089)"
)

// BatchFlagValues stores batch flag values.
type BatchFlagValues struct {
	Total         int
	Concurrency   int
	Progress      string
	SummaryFormat string
	StatusAddress string
}

// BindBatchFlags attaches the standard batch flags to the provided command.
func BindBatchFlags(command *cobra.Command, defaults BatchFlagValues) *BatchFlagValues {
	values := defaults
	if command == nil {
		return &values
	}

	flagSet := command.Flags()
	flagSet.IntVarP(&values.Total, TotalFlagName, TotalFlagShorthand, defaults.Total, TotalFlagUsage)
	flagSet.IntVarP(&values.Concurrency, ConcurrencyFlagName, ConcurrencyFlagShorthand, defaults.Concurrency, ConcurrencyFlagUsage)
	flagSet.StringVar(&values.Progress, ProgressFlagName, defaults.Progress, ProgressFlagUsage)
	flagSet.StringVar(&values.SummaryFormat, SummaryFormatFlagName, defaults.SummaryFormat, SummaryFormatFlagUsage)
	flagSet.StringVar(&values.StatusAddress, StatusAddressFlagName, defaults.StatusAddress, StatusAddressFlagUsage)

	return &values
}
