// Package cli implements the batteryview command line tool: offline
// analysis of charge-controller export documents without a server.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
)

var rootCmd = &cobra.Command{
	Use:   "batteryview",
	Short: "Solar battery log analyzer",
	Long: `A command line tool for analyzing solar charge-controller log exports.
Computes daily statistics, depth-of-discharge, cycle-life estimates and
state-of-health directly from JSON export documents.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("output", "", "Output format (text/json/yaml)")
	rootCmd.PersistentFlags().Bool("drop-first-sample", false, "Discard the first sample of every series")
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("drop_first_sample", rootCmd.PersistentFlags().Lookup("drop-first-sample"))
}

func initConfig() {
	// Environment variables (BATTERYVIEW_FULL_CHARGE_VOLTAGE etc.)
	viper.SetEnvPrefix("BATTERYVIEW")
	viper.AutomaticEnv()

	// Defaults match the server configuration defaults
	viper.SetDefault("output", "text")
	viper.SetDefault("drop_first_sample", false)
	viper.SetDefault("full_charge_voltage", 13.0)
	viper.SetDefault("nominal_capacity", 33.0)
	viper.SetDefault("strategy", "quadratic")
	viper.SetDefault("reference_voltage", 13.0)
}

// loadDocument parses one export file with the configured drop-first
// policy. Recovered per-entry errors are reported on stderr without
// failing the run.
func loadDocument(path string) (*models.ParsedDocument, error) {
	registry := parser.GetGlobalRegistry()
	p, err := registry.FindParser(path)
	if err != nil {
		return nil, fmt.Errorf("unrecognized export document %s: %w", path, err)
	}

	opts := parser.Options{DropFirstSample: viper.GetBool("drop_first_sample")}
	doc, parseErrors, err := p.Parse(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(parseErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d malformed entries in %s\n", len(parseErrors), path)
	}
	return doc, nil
}

// parseEpochMillis interprets s as Unix epoch milliseconds.
func parseEpochMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// writeStructured renders v as JSON or YAML on stdout.
func writeStructured(format string, v interface{}) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		fmt.Print(string(data))
		return nil
	}
	return fmt.Errorf("unsupported output format: %s (valid: text, json, yaml)", format)
}
