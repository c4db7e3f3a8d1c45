package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the configuration file looked up next to the working directory
// and the source file.
const FileName = "macro_replacer.json"

// Config is the top-level configuration for macro-replacer
type Config struct {
	// Analyzer locates and runs the external structural analyzer
	Analyzer AnalyzerConfig `json:"analyzer,omitempty"`

	// Render controls the layout of the synthesized instantiation
	Render RenderConfig `json:"render,omitempty"`

	// Match controls how new macro ports are bound to old connections
	Match MatchConfig `json:"match,omitempty"`

	// Audit contains audit rule configuration
	Audit AuditConfig `json:"audit,omitempty"`
}

// AnalyzerConfig locates the analyzer binary
type AnalyzerConfig struct {
	// Path is an explicit analyzer binary; empty means search
	Path string `json:"path,omitempty"`

	// Timeout bounds one analyzer run, as a Go duration ("30s"); empty means none
	Timeout string `json:"timeout,omitempty"`
}

// RenderConfig controls instantiation text layout
type RenderConfig struct {
	HeaderIndent *int   `json:"headerIndent,omitempty"`
	PortIndent   *int   `json:"portIndent,omitempty"`
	PortColumn   *int   `json:"portColumn,omitempty"`
	Unconnected  string `json:"unconnected,omitempty"`
}

// MatchConfig controls port matching
type MatchConfig struct {
	// HeuristicFallback applies the name heuristics after exact, fuzzy and
	// rename matching have failed
	HeuristicFallback *bool `json:"heuristicFallback,omitempty"`

	// RenameRules are appended after the built-in rename table
	RenameRules []RenameRule `json:"renameRules,omitempty"`
}

// RenameRule maps old port names (compared after case folding and underscore
// removal) onto new port names. Match is "equals" or "contains" and applies to
// the new port name.
type RenameRule struct {
	Old   []string `json:"old"`
	New   string   `json:"new"`
	Match string   `json:"match,omitempty"`
}

// AuditConfig contains audit rule configuration
type AuditConfig struct {
	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty"`

	// PolicyDir holds *.rego files that replace the embedded audit policy
	PolicyDir string `json:"policyDir,omitempty"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			HeaderIndent: intPtr(2),
			PortIndent:   intPtr(6),
			PortColumn:   intPtr(10),
			Unconnected:  "/* UNCONNECTED */",
		},
		Match: MatchConfig{
			HeuristicFallback: boolPtr(true),
			RenameRules:       []RenameRule{},
		},
		Audit: AuditConfig{
			Rules: map[string]string{},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func intPtr(v int) *int {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./macro_replacer.json (current working directory)
//  2. ./.macro_replacer.json (current working directory)
//  3. <dir of sourcePath>/macro_replacer.json (if different from cwd)
//  4. ~/.config/macro_replacer/config.json
//
// Returns DefaultConfig if no config file is found
func Load(sourcePath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, FileName),
		filepath.Join(cwd, "."+FileName),
	}

	if sourcePath != "" {
		dir := sourcePath
		if info, err := os.Stat(sourcePath); err != nil || !info.IsDir() {
			dir = filepath.Dir(sourcePath)
		}
		absDir, _ := filepath.Abs(dir)
		if absDir != cwd {
			searchPaths = append(searchPaths, filepath.Join(absDir, FileName))
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "macro_replacer", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Render.HeaderIndent == nil {
		c.Render.HeaderIndent = def.Render.HeaderIndent
	}
	if c.Render.PortIndent == nil {
		c.Render.PortIndent = def.Render.PortIndent
	}
	if c.Render.PortColumn == nil {
		c.Render.PortColumn = def.Render.PortColumn
	}
	if c.Render.Unconnected == "" {
		c.Render.Unconnected = def.Render.Unconnected
	}

	if c.Match.HeuristicFallback == nil {
		c.Match.HeuristicFallback = def.Match.HeuristicFallback
	}

	if c.Audit.Rules == nil {
		c.Audit.Rules = make(map[string]string)
	}
}

// Validate rejects values the rest of the tool cannot interpret
func (c *Config) Validate() error {
	if _, err := c.Analyzer.TimeoutDuration(); err != nil {
		return err
	}
	for _, v := range []*int{c.Render.HeaderIndent, c.Render.PortIndent, c.Render.PortColumn} {
		if v != nil && *v < 0 {
			return fmt.Errorf("render: negative width %d", *v)
		}
	}
	for i, r := range c.Match.RenameRules {
		if len(r.Old) == 0 || r.New == "" {
			return fmt.Errorf("match.renameRules[%d]: old and new are required", i)
		}
		switch r.Match {
		case "", "equals", "contains":
		default:
			return fmt.Errorf("match.renameRules[%d]: unknown match %q", i, r.Match)
		}
	}
	for rule, severity := range c.Audit.Rules {
		switch severity {
		case "off", "info", "warning", "error":
		default:
			return fmt.Errorf("audit.rules[%s]: unknown severity %q", rule, severity)
		}
	}
	return nil
}

// TimeoutDuration parses Timeout; zero means no timeout
func (a AnalyzerConfig) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("analyzer.timeout: %w", err)
	}
	return d, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetRuleSeverity returns the severity for a rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Audit.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// HeuristicFallbackEnabled reports whether the planner may fall back to name heuristics
func (c *Config) HeuristicFallbackEnabled() bool {
	return c.Match.HeuristicFallback == nil || *c.Match.HeuristicFallback
}
