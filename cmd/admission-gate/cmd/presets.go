package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/admission/internal/config"
	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// presetView is the exported shape of a preset.
type presetView struct {
	Name        string `json:"name" yaml:"name"`
	MaxRequests int    `json:"max_requests" yaml:"max_requests"`
	Window      string `json:"window" yaml:"window"`
}

var presetsOutput string

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Print the effective preset table",
	Long: `Print the built-in presets with any rate_limit.presets overrides from
the config file applied.

Examples:
  admission-gate presets
  admission-gate presets --output yaml`,
	RunE: runPresets,
}

func init() {
	presetsCmd.Flags().StringVarP(&presetsOutput, "output", "o", "text", "output format: text, yaml or json")
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, err := cfg.PresetRegistry()
	if err != nil {
		return err
	}
	return writePresets(cmd.OutOrStdout(), registry, presetsOutput)
}

func writePresets(w io.Writer, registry *ratelimit.PresetRegistry, format string) error {
	presets := registry.Presets()
	views := make([]presetView, len(presets))
	for i, p := range presets {
		views[i] = presetView{Name: p.Name, MaxRequests: p.MaxRequests, Window: p.Window.String()}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tMAX REQUESTS\tWINDOW")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", v.Name, v.MaxRequests, v.Window)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}
