package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/batteryview/backend/internal/models"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <file>",
	Short: "List the metrics recorded in an export document",
	Long: `Parses a charge-controller export document and prints every metric it
contains with its sample count and covered time range.`,
	Args: cobra.ExactArgs(1),
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

// metricInfo is the structured-output row for one metric.
type metricInfo struct {
	Name    string    `json:"name" yaml:"name"`
	Samples int       `json:"samples" yaml:"samples"`
	First   time.Time `json:"first,omitempty" yaml:"first,omitempty"`
	Last    time.Time `json:"last,omitempty" yaml:"last,omitempty"`
}

func runMetrics(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	infos := collectMetricInfo(doc)

	output := viper.GetString("output")
	if output == "text" {
		fmt.Print(formatMetricsText(args[0], infos))
		return nil
	}
	return writeStructured(output, infos)
}

func collectMetricInfo(doc *models.ParsedDocument) []metricInfo {
	names := doc.MetricNames()
	infos := make([]metricInfo, 0, len(names))
	for _, name := range names {
		series := doc.Metric(name)
		info := metricInfo{Name: name, Samples: series.Len()}
		if first, last, ok := series.TimeRange(); ok {
			info.First, info.Last = first, last
		}
		infos = append(infos, info)
	}
	return infos
}

func formatMetricsText(path string, infos []metricInfo) string {
	var b strings.Builder

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tSAMPLES\tFIRST\tLAST")
	total := 0
	for _, info := range infos {
		first, last := "-", "-"
		if !info.First.IsZero() {
			first = info.First.Format(time.RFC3339)
			last = info.Last.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Name, info.Samples, first, last)
		total += info.Samples
	}
	w.Flush()

	fmt.Fprintf(&b, "\n%s: %d samples across %d metrics\n", path, total, len(infos))
	return b.String()
}
