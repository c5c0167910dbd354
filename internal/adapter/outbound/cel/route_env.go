package cel

import (
	"net"
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// NewRouteEnvironment creates the CEL environment for route conditions. It declares:
//   - Variables: method, path, host, client_id, headers, request_time
//   - Custom functions: glob, ip_in_cidr
func NewRouteEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("method", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("client_id", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("request_time", cel.TimestampType),

		// glob: shell pattern match, e.g. glob("/api/*/upload", path)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// ip_in_cidr: ip_in_cidr(client_id, "10.0.0.0/8").
		// False when either argument does not parse.
		cel.Function("ip_in_cidr",
			cel.Overload("ip_in_cidr_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(ipVal, cidrVal ref.Val) ref.Val {
					ip := net.ParseIP(ipVal.Value().(string))
					if ip == nil {
						return types.Bool(false)
					}
					_, network, err := net.ParseCIDR(cidrVal.Value().(string))
					if err != nil {
						return types.Bool(false)
					}
					return types.Bool(network.Contains(ip))
				}),
			),
		),
	)
}

// BuildRouteActivation creates a CEL activation map from request attributes.
// Header names are expected in canonical form (e.g. "X-Api-Version").
func BuildRouteActivation(attrs ratelimit.RequestAttributes) map[string]any {
	headers := attrs.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return map[string]any{
		"method":       attrs.Method,
		"path":         attrs.Path,
		"host":         attrs.Host,
		"client_id":    attrs.ClientID,
		"headers":      headers,
		"request_time": attrs.RequestTime,
	}
}
