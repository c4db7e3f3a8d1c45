package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if *cfg.Render.HeaderIndent != 2 || *cfg.Render.PortIndent != 6 || *cfg.Render.PortColumn != 10 {
		t.Fatalf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.Render.Unconnected != "/* UNCONNECTED */" {
		t.Fatalf("unexpected unconnected marker %q", cfg.Render.Unconnected)
	}
	if !cfg.HeuristicFallbackEnabled() {
		t.Fatalf("expected heuristic fallback enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `{
  "analyzer": {"path": "/opt/inspector", "timeout": "45s"},
  "render": {"portColumn": 0},
  "match": {"heuristicFallback": false, "renameRules": [{"old": ["ce"], "new": "cen", "match": "equals"}]},
  "audit": {"rules": {"unconnected_clock": "error"}}
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Analyzer.Path != "/opt/inspector" {
		t.Fatalf("analyzer path = %q", cfg.Analyzer.Path)
	}
	d, err := cfg.Analyzer.TimeoutDuration()
	if err != nil || d != 45*time.Second {
		t.Fatalf("timeout = %v, %v", d, err)
	}
	if *cfg.Render.PortColumn != 0 {
		t.Fatalf("explicit zero port column must survive defaults, got %d", *cfg.Render.PortColumn)
	}
	if *cfg.Render.PortIndent != 6 {
		t.Fatalf("missing port indent should default to 6, got %d", *cfg.Render.PortIndent)
	}
	if cfg.HeuristicFallbackEnabled() {
		t.Fatalf("expected heuristic fallback disabled")
	}
	if len(cfg.Match.RenameRules) != 1 || cfg.Match.RenameRules[0].New != "cen" {
		t.Fatalf("rename rules = %+v", cfg.Match.RenameRules)
	}
	if got := cfg.GetRuleSeverity("unconnected_clock", "warning"); got != "error" {
		t.Fatalf("severity = %q, want error", got)
	}
	if got := cfg.GetRuleSeverity("dropped_connection", "warning"); got != "warning" {
		t.Fatalf("default severity = %q, want warning", got)
	}
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad_timeout", `{"analyzer": {"timeout": "soon"}}`},
		{"bad_severity", `{"audit": {"rules": {"dropped_connection": "fatal"}}}`},
		{"bad_match", `{"match": {"renameRules": [{"old": ["a"], "new": "b", "match": "regex"}]}}`},
		{"rule_without_old", `{"match": {"renameRules": [{"new": "b"}]}}`},
		{"negative_indent", `{"render": {"portIndent": -1}}`},
		{"not_json", `{"render": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			writeFile(t, path, tt.body)
			if _, err := LoadFile(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadSearchesSourceDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cwd := t.TempDir()
	t.Chdir(cwd)

	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "top.sv")
	writeFile(t, source, "module top; endmodule\n")
	writeFile(t, filepath.Join(srcDir, FileName), `{"render": {"unconnected": "/* NC */"}}`)

	cfg, err := Load(source)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.Unconnected != "/* NC */" {
		t.Fatalf("expected config from source dir, got marker %q", cfg.Render.Unconnected)
	}

	// The working directory wins over the source directory.
	writeFile(t, filepath.Join(cwd, FileName), `{"render": {"unconnected": "/* CWD */"}}`)
	cfg, err = Load(source)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.Unconnected != "/* CWD */" {
		t.Fatalf("expected config from cwd, got marker %q", cfg.Render.Unconnected)
	}
}

func TestLoadWithoutConfigReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.Unconnected != "/* UNCONNECTED */" {
		t.Fatalf("expected defaults, got %+v", cfg.Render)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Audit.Rules["heuristic_binding"] = "off"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := loaded.GetRuleSeverity("heuristic_binding", "info"); got != "off" {
		t.Fatalf("heuristic_binding = %q after round trip, want off", got)
	}
	if got := loaded.GetRuleSeverity("dropped_connection", "warning"); got != "warning" {
		t.Fatalf("unconfigured rule = %q, want default warning", got)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
