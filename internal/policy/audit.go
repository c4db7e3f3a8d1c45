package policy

import (
	"cmp"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/open-policy-agent/opa/rego"

	"github.com/Emin017/macro-replacer/internal/rewrite"
)

//go:embed audit.rego
var embeddedPolicy string

// Query is the rule set every audit policy must define.
const Query = "data.macroswap.audit.findings"

var ErrBlocked = errors.New("rewrite blocked by audit")

// Severities, from most to least severe.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeverityOff     = "off"
)

// Engine evaluates the audit policy against a finished rewrite
type Engine struct {
	query rego.PreparedEvalQuery
}

// Finding is one audit result
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Port     string `json:"port"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Findings []Finding
	Summary  Summary
}

// Summary provides aggregate counts
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// Blocked reports whether any finding has severity error.
func (r *Result) Blocked() bool {
	return r.Summary.Errors > 0
}

// Input is the data structure passed to OPA
type Input struct {
	Source   string    `json:"source"`
	OldMacro string    `json:"old_macro"`
	NewMacro string    `json:"new_macro"`
	Instance string    `json:"instance"`
	Bindings []Binding `json:"bindings"`
	Dropped  []Dropped `json:"dropped"`
}

type Binding struct {
	Port         string `json:"port"`
	Direction    string `json:"direction"`
	Expression   string `json:"expression"`
	OldPort      string `json:"old_port"`
	OldDirection string `json:"old_direction"`
	Source       string `json:"source"`
	Connected    bool   `json:"connected"`
}

type Dropped struct {
	Port       string `json:"port"`
	Expression string `json:"expression"`
}

// InputFromRewrite flattens a rewrite result into policy input.
func InputFromRewrite(source, oldMacro, newMacro string, res *rewrite.Result) Input {
	in := Input{
		Source:   source,
		OldMacro: oldMacro,
		NewMacro: newMacro,
		Instance: res.Instance.Name,
		Bindings: []Binding{},
		Dropped:  []Dropped{},
	}
	for _, b := range res.Plan.Bindings {
		in.Bindings = append(in.Bindings, Binding{
			Port:         b.Port,
			Direction:    string(b.Direction),
			Expression:   b.Expression,
			OldPort:      b.OldPort,
			OldDirection: string(b.OldDirection),
			Source:       string(b.Source),
			Connected:    b.Connected(),
		})
	}
	for _, d := range res.Plan.Dropped {
		in.Dropped = append(in.Dropped, Dropped{Port: d.Port, Expression: d.Expression})
	}
	return in
}

// New prepares the audit query. With an empty policyDir the embedded policy
// is used; otherwise every *.rego file in policyDir replaces it.
func New(policyDir string) (*Engine, error) {
	var modules []func(*rego.Rego)

	if policyDir == "" {
		modules = append(modules, rego.Module("audit.rego", embeddedPolicy))
	} else {
		files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", policyDir)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
		}
	}

	opts := append(modules, rego.Query(Query))
	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing audit query: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate runs the policy. severity maps a rule and its policy default to
// the configured severity; nil keeps the defaults. Findings whose severity
// resolves to "off" are dropped.
func (e *Engine) Evaluate(ctx context.Context, input Input, severity func(rule, def string) string) (*Result, error) {
	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating audit: %w", err)
	}

	result := &Result{}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		findings, _ := rs[0].Expressions[0].Value.([]interface{})
		for _, v := range findings {
			fmap, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			f := Finding{
				Rule:     getString(fmap, "rule"),
				Severity: getString(fmap, "severity"),
				Port:     getString(fmap, "port"),
				Message:  getString(fmap, "message"),
			}
			if f.Severity == "" {
				f.Severity = SeverityWarning
			}
			if severity != nil {
				f.Severity = severity(f.Rule, f.Severity)
			}
			if f.Severity == SeverityOff {
				continue
			}
			result.Findings = append(result.Findings, f)
		}
	}

	slices.SortFunc(result.Findings, func(a, b Finding) int {
		if c := cmp.Compare(rank(a.Severity), rank(b.Severity)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Rule, b.Rule); c != 0 {
			return c
		}
		return cmp.Compare(a.Port, b.Port)
	})

	for _, f := range result.Findings {
		switch f.Severity {
		case SeverityError:
			result.Summary.Errors++
		case SeverityWarning:
			result.Summary.Warnings++
		default:
			result.Summary.Info++
		}
	}

	return result, nil
}

func rank(severity string) int {
	switch severity {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
