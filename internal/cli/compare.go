package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/models"
)

var compareCmd = &cobra.Command{
	Use:   "compare <full-file> <sample-file>",
	Short: "Compare a full export against a downsampled export",
	Long: `Parses a full-resolution export and a downsampled export of the same
device and prints per-metric compression percentages plus the error the
downsampling introduces into the remaining-cycles estimate.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().Float64("reference-voltage", battery.DefaultFullChargeVoltage, "Full-charge voltage for the remaining-cycles check")
	compareCmd.Flags().String("strategy", "", "Cycle estimation strategy (linear/quadratic)")
	compareCmd.Flags().StringSlice("metrics", nil, "Restrict the per-metric comparison to these metrics")

	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	opts, err := compareOptions(cmd)
	if err != nil {
		return err
	}

	fullDoc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	sampleDoc, err := loadDocument(args[1])
	if err != nil {
		return err
	}

	result := battery.Compare(fullDoc, sampleDoc, opts)

	output := viper.GetString("output")
	if output == "text" {
		fmt.Print(formatComparisonText(result))
		return nil
	}
	return writeStructured(output, result)
}

func compareOptions(cmd *cobra.Command) (battery.CompareOptions, error) {
	var opts battery.CompareOptions

	refV, _ := cmd.Flags().GetFloat64("reference-voltage")
	if !cmd.Flags().Changed("reference-voltage") {
		refV = viper.GetFloat64("reference_voltage")
	}
	if refV <= 0 {
		return opts, fmt.Errorf("reference-voltage must be positive, got %v", refV)
	}
	opts.ReferenceVoltage = refV

	name, _ := cmd.Flags().GetString("strategy")
	if name == "" {
		name = viper.GetString("strategy")
	}
	strategy, err := battery.ParseStrategy(name)
	if err != nil {
		return opts, err
	}
	opts.Strategy = strategy

	opts.MetricKeys, _ = cmd.Flags().GetStringSlice("metrics")
	return opts, nil
}

func formatComparisonText(r *models.ComparisonResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Compression Comparison\n")
	fmt.Fprintf(&b, "======================\n")
	fmt.Fprintf(&b, "Reference voltage: %.2f V\n", r.ReferenceVoltage)
	fmt.Fprintf(&b, "Strategy:          %s\n", r.Strategy)

	metrics := make([]string, 0, len(r.PerMetric))
	for m := range r.PerMetric {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	fmt.Fprintf(&b, "\nPer-metric compression:\n")
	if len(metrics) == 0 {
		fmt.Fprintf(&b, "  (no shared metrics)\n")
	}
	for _, m := range metrics {
		fmt.Fprintf(&b, "  %-24s %7.2f%%\n", m, r.PerMetric[m])
	}

	fmt.Fprintf(&b, "\nRemaining cycles:\n")
	fmt.Fprintf(&b, "  Full:   %.2f\n", r.Remaining.Full)
	fmt.Fprintf(&b, "  Sample: %.2f\n", r.Remaining.Sample)
	fmt.Fprintf(&b, "  Error:  %.2f\n", r.Remaining.AbsoluteError)
	return b.String()
}
