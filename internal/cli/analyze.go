package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Compute the battery health report for one export document",
	Long: `Parses a charge-controller export document and prints the battery
health report: per-day depth-of-discharge, cycle-life estimate, status
band and coulomb-counted state-of-health.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Float64("full-charge-voltage", battery.DefaultFullChargeVoltage, "Voltage treated as 100% charge")
	analyzeCmd.Flags().Float64("nominal-capacity", battery.DefaultNominalCapacityAh, "Nominal battery capacity in Ah (0 disables SOH)")
	analyzeCmd.Flags().String("strategy", "", "Cycle estimation strategy (linear/quadratic)")
	analyzeCmd.Flags().String("t1", "", "SOH integration window start (RFC3339 or epoch ms)")
	analyzeCmd.Flags().String("t2", "", "SOH integration window end (RFC3339 or epoch ms)")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	params, err := analyzeParams(cmd)
	if err != nil {
		return err
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	report, err := battery.BuildHealthReport(doc, params, models.DefaultCatalog())
	if err != nil {
		return err
	}

	output := viper.GetString("output")
	if output == "text" {
		fmt.Print(formatHealthText(report))
		return nil
	}
	return writeStructured(output, report)
}

// analyzeParams merges flags over the viper configuration into the
// health computation parameters.
func analyzeParams(cmd *cobra.Command) (battery.Params, error) {
	params := battery.DefaultParams()

	fullV, _ := cmd.Flags().GetFloat64("full-charge-voltage")
	if !cmd.Flags().Changed("full-charge-voltage") {
		fullV = viper.GetFloat64("full_charge_voltage")
	}
	if fullV <= 0 {
		return params, fmt.Errorf("full-charge-voltage must be positive, got %v", fullV)
	}
	params.FullChargeVoltage = fullV

	capacity, _ := cmd.Flags().GetFloat64("nominal-capacity")
	if !cmd.Flags().Changed("nominal-capacity") {
		capacity = viper.GetFloat64("nominal_capacity")
	}
	if capacity < 0 {
		return params, fmt.Errorf("nominal-capacity must not be negative, got %v", capacity)
	}
	params.NominalCapacityAh = capacity

	name, _ := cmd.Flags().GetString("strategy")
	if name == "" {
		name = viper.GetString("strategy")
	}
	strategy, err := battery.ParseStrategy(name)
	if err != nil {
		return params, err
	}
	params.Strategy = strategy

	if t1, _ := cmd.Flags().GetString("t1"); t1 != "" {
		params.WindowStart, err = parseInstantArg(t1)
		if err != nil {
			return params, fmt.Errorf("invalid t1: %w", err)
		}
	}
	if t2, _ := cmd.Flags().GetString("t2"); t2 != "" {
		params.WindowEnd, err = parseInstantArg(t2)
		if err != nil {
			return params, fmt.Errorf("invalid t2: %w", err)
		}
	}
	return params, nil
}

// parseInstantArg accepts epoch milliseconds or any timestamp layout
// the document parsers understand.
func parseInstantArg(s string) (time.Time, error) {
	if ms, err := parseEpochMillis(s); err == nil {
		return ms, nil
	}
	return parser.ParseTimestamp(s)
}

func formatHealthText(r *models.HealthReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Battery Health Report\n")
	fmt.Fprintf(&b, "=====================\n")
	fmt.Fprintf(&b, "Full-charge voltage: %.2f V\n", r.FullChargeVoltage)
	fmt.Fprintf(&b, "Days with data:      %d\n", r.DaysWithData)
	fmt.Fprintf(&b, "Average DoD:         %.2f%% (min %.2f%%, max %.2f%%)\n", r.AvgDoD, r.MinDoD, r.MaxDoD)
	fmt.Fprintf(&b, "Status:              %s\n", r.Status)

	fmt.Fprintf(&b, "\nCycle estimate (%s):\n", r.Cycles.Strategy)
	fmt.Fprintf(&b, "  Total cycles:     %.2f\n", r.Cycles.TotalCycles)
	fmt.Fprintf(&b, "  Remaining cycles: %.2f\n", r.Cycles.RemainingCycles)
	fmt.Fprintf(&b, "  Lifecycle:        %.2f%%\n", r.Cycles.LifecyclePercent)

	fmt.Fprintf(&b, "\nState of health:\n")
	switch {
	case r.SOH != nil:
		fmt.Fprintf(&b, "  Nominal capacity:  %.2f Ah\n", r.SOH.NominalCapacityAh)
		fmt.Fprintf(&b, "  Measured capacity: %.2f Ah\n", r.SOH.ActualCapacityAh)
		fmt.Fprintf(&b, "  SOH:               %.2f%%\n", r.SOH.SOHPercent)
		fmt.Fprintf(&b, "  Window:            %s .. %s (%d samples)\n",
			r.SOH.WindowStart.Format(time.RFC3339), r.SOH.WindowEnd.Format(time.RFC3339), r.SOH.SampleCount)
	case r.SOHWarning != "":
		fmt.Fprintf(&b, "  unavailable: %s\n", r.SOHWarning)
	default:
		fmt.Fprintf(&b, "  not computed\n")
	}
	return b.String()
}
