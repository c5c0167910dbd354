package cmd

import (
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/admission/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

var (
	resolveHeaders []string
	resolvePreset  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the client identifier resolved from headers",
	Long: `Resolve the client identifier the gate would use for a request carrying
the given headers, and the store key it would be counted under.

Examples:
  admission-gate resolve --header "X-Forwarded-For=203.0.113.5, 10.0.0.1"
  admission-gate resolve --header CF-Connecting-IP=198.51.100.7 --preset auth`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringArrayVarP(&resolveHeaders, "header", "H", nil, "request header as Name=Value (repeatable)")
	resolveCmd.Flags().StringVar(&resolvePreset, "preset", ratelimit.PresetPublic, "endpoint class used to build the key")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	return resolveIdentity(cmd.OutOrStdout(), resolveHeaders, resolvePreset)
}

func resolveIdentity(w io.Writer, headers []string, preset string) error {
	h := make(stdhttp.Header, len(headers))
	for _, kv := range headers {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid header %q, want Name=Value", kv)
		}
		h.Add(strings.TrimSpace(name), value)
	}

	id := http.ResolveClientIdentifier(h)
	fmt.Fprintf(w, "identifier: %s\n", id)
	fmt.Fprintf(w, "key:        %s\n", ratelimit.FormatKey(strings.ToLower(preset), id))
	return nil
}
