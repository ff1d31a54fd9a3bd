package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/metrics":                 "/metrics",
		"/v1/components/abc":       "/v1/components/:id",
		"/v1/users/abc":            "/v1/users/:id",
		"/v1/users/abc/extra":      "/v1/users/abc/extra",
		"/v1/patents":              "/v1/patents",
		"/v1/families?active=true": "/v1/families",
		"/v1/components/abc?x=1":   "/v1/components/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", input, got, want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestConfigureWritesFileSinkAboveLevel(t *testing.T) {
	restore := SetLogger(*Logger())
	defer restore()

	path := filepath.Join(t.TempDir(), "app.log")
	closer, err := Configure(LogConfig{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	l := Logger()
	l.Info().Msg("dropped")
	l.Warn().Str("component", "test").Msg("kept")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["message"] != "kept" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetLoggerRestore(t *testing.T) {
	var buf bytes.Buffer
	restore := SetLogger(zerolog.New(&buf))
	l := Logger()
	l.Info().Msg("captured")
	restore()
	if !strings.Contains(buf.String(), "captured") {
		t.Fatalf("expected captured output, got %q", buf.String())
	}
}

func TestSetBuildInfoKeepsOneSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(buildInfo)

	SetBuildInfo("0.0.1", "a")
	SetBuildInfo("0.0.2", "b")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || len(families[0].GetMetric()) != 1 {
		t.Fatalf("expected one build_info series, got %v", families)
	}
	m := families[0].GetMetric()[0]
	if m.GetGauge().GetValue() != 1 {
		t.Fatalf("expected 1, got %v", m.GetGauge().GetValue())
	}
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "version" && lp.GetValue() != "0.0.2" {
			t.Fatalf("stale version label %q", lp.GetValue())
		}
	}
}
