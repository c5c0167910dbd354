package cel

import (
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

func baseAttrs() ratelimit.RequestAttributes {
	return ratelimit.RequestAttributes{
		Method:   "POST",
		Path:     "/api/v1/files/upload",
		Host:     "api.example.com",
		ClientID: "10.1.2.3",
		Headers: map[string]string{
			"X-Api-Version": "2",
			"Content-Type":  "multipart/form-data",
		},
		RequestTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`this is not valid CEL !!!`); err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestCompile_RejectsNonBool(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`path + "x"`); err == nil {
		t.Fatal("Compile() accepted a string-valued expression")
	}
}

func TestEvaluate_Conditions(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"method", `method == "POST"`, true},
		{"path prefix", `path.startsWith("/api/v1/")`, true},
		{"glob", `glob("/api/*/files/*", path)`, true},
		{"glob miss", `glob("/admin/*", path)`, false},
		{"header", `headers["X-Api-Version"] == "2"`, true},
		{"header missing", `"Authorization" in headers`, false},
		{"host", `host.endsWith(".example.com")`, true},
		{"cidr", `ip_in_cidr(client_id, "10.0.0.0/8")`, true},
		{"cidr miss", `ip_in_cidr(client_id, "192.168.0.0/16")`, false},
		{"cidr bad ip", `ip_in_cidr("unknown", "10.0.0.0/8")`, false},
		{"time", `request_time > timestamp("2026-01-01T00:00:00Z")`, true},
		{"strings ext", `path.lowerAscii().contains("upload")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := eval.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", tt.expr, err)
			}
			got, err := eval.Evaluate(prg, baseAttrs())
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NilHeaders(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	prg, err := eval.Compile(`size(headers) == 0`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	attrs := baseAttrs()
	attrs.Headers = nil
	got, err := eval.Evaluate(prg, attrs)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !got {
		t.Error("nil headers should evaluate as an empty map")
	}
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"valid", `method == "GET"`, ""},
		{"empty", ``, "empty"},
		{"too long", `path == "` + strings.Repeat("a", maxExpressionLength) + `"`, "too long"},
		{"too deep", strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1), "nesting"},
		{"unknown variable", `tool_name == "x"`, "invalid CEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateExpression() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateExpression() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompileCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	cond, err := eval.CompileCondition(`method == "POST" && glob("*/upload", path)`)
	if err != nil {
		t.Fatalf("CompileCondition() error: %v", err)
	}
	ok, err := cond.Matches(baseAttrs())
	if err != nil || !ok {
		t.Errorf("Matches() = %v, %v; want true, nil", ok, err)
	}

	attrs := baseAttrs()
	attrs.Method = "GET"
	if ok, _ := cond.Matches(attrs); ok {
		t.Error("Matches() = true for GET")
	}

	if _, err := eval.CompileCondition(""); err == nil {
		t.Error("CompileCondition(\"\") expected error")
	}
}

func TestRouteTable_WithCELConditions(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	registry, err := ratelimit.NewPresetRegistry()
	if err != nil {
		t.Fatalf("NewPresetRegistry() error: %v", err)
	}

	table, err := ratelimit.NewRouteTable([]ratelimit.Route{
		{Name: "internal", PathPrefix: "/api/", Preset: "admin", Condition: `ip_in_cidr(client_id, "10.0.0.0/8")`},
		{Name: "api", PathPrefix: "/api/", Preset: "query"},
	}, "public", registry, eval)
	if err != nil {
		t.Fatalf("NewRouteTable() error: %v", err)
	}

	preset, route, err := table.Classify(baseAttrs())
	if err != nil || preset != "admin" || route != "internal" {
		t.Errorf("Classify(internal) = %q, %q, %v", preset, route, err)
	}

	external := baseAttrs()
	external.ClientID = "203.0.113.9"
	preset, route, _ = table.Classify(external)
	if preset != "query" || route != "api" {
		t.Errorf("Classify(external) = %q, %q", preset, route)
	}

	if _, err := ratelimit.NewRouteTable([]ratelimit.Route{
		{Name: "bad", Preset: "public", Condition: `nonsense(`},
	}, "public", registry, eval); err == nil {
		t.Error("NewRouteTable() accepted an invalid condition")
	}
}
