// Package report turns a finished rewrite into the console summary, the JSON
// report written with --report and the unified diff printed with --diff.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/policy"
	"github.com/Emin017/macro-replacer/internal/rewrite"
	"github.com/Emin017/macro-replacer/internal/validator"
)

// Report is the JSON document described by #Report.
type Report struct {
	Source   string           `json:"source"`
	Module   string           `json:"module"`
	OldMacro string           `json:"old_macro"`
	NewMacro string           `json:"new_macro"`
	Instance string           `json:"instance"`
	Output   string           `json:"output,omitempty"`
	Range    Range            `json:"range"`
	Anchor   Anchor           `json:"anchor"`
	Plan     []Binding        `json:"plan"`
	Warnings []hdl.Warning    `json:"warnings"`
	Findings []policy.Finding `json:"findings"`
	Summary  Summary          `json:"summary"`
}

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Anchor struct {
	Word       string `json:"word"`
	Matched    bool   `json:"matched"`
	Terminator bool   `json:"terminator"`
}

type Binding struct {
	Port       string `json:"port"`
	Direction  string `json:"direction"`
	Expression string `json:"expression"`
	OldPort    string `json:"old_port"`
	Source     string `json:"source"`
	Connected  bool   `json:"connected"`
}

type Summary struct {
	Bindings    int `json:"bindings"`
	Unconnected int `json:"unconnected"`
	Warnings    int `json:"warnings"`
	Errors      int `json:"errors"`
}

// Meta names the run a report belongs to.
type Meta struct {
	Source   string
	Module   string
	OldMacro string
	NewMacro string
	Output   string
}

// Build assembles a report. warnings are the run's warnings including those
// raised before the rewrite (module inference); audit may be nil.
func Build(meta Meta, res *rewrite.Result, warnings []hdl.Warning, audit *policy.Result) *Report {
	r := &Report{
		Source:   meta.Source,
		Module:   meta.Module,
		OldMacro: meta.OldMacro,
		NewMacro: meta.NewMacro,
		Instance: res.Instance.Name,
		Output:   meta.Output,
		Range:    Range{Start: res.Anchor.Start, End: res.Anchor.End},
		Anchor: Anchor{
			Word:       res.Anchor.Word,
			Matched:    res.Anchor.Matched,
			Terminator: res.Anchor.Terminator,
		},
		Plan:     []Binding{},
		Warnings: []hdl.Warning{},
		Findings: []policy.Finding{},
	}

	for _, b := range res.Plan.Bindings {
		r.Plan = append(r.Plan, Binding{
			Port:       b.Port,
			Direction:  string(b.Direction),
			Expression: b.Expression,
			OldPort:    b.OldPort,
			Source:     string(b.Source),
			Connected:  b.Connected(),
		})
	}
	r.Warnings = append(r.Warnings, warnings...)
	if audit != nil {
		r.Findings = append(r.Findings, audit.Findings...)
		r.Summary.Errors = audit.Summary.Errors
	}

	r.Summary.Bindings = len(r.Plan)
	r.Summary.Unconnected = res.Plan.Unconnected()
	r.Summary.Warnings = len(r.Warnings)
	return r
}

// WriteJSON checks r against #Report and writes it to path.
func WriteJSON(path string, r *Report, v *validator.Validator) error {
	if v != nil {
		if err := v.ValidateReport(r); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// PrintSummary writes the human summary of a rewrite.
func PrintSummary(w io.Writer, r *Report) {
	fmt.Fprintf(w, "\n=== Instance ===\n")
	fmt.Fprintf(w, "  %s %s in %s (bytes %d-%d)\n", r.OldMacro, r.Instance, r.Module, r.Range.Start, r.Range.End)
	if r.Anchor.Matched {
		fmt.Fprintf(w, "  anchor: %s\n", r.Anchor.Word)
	} else {
		fmt.Fprintf(w, "  anchor: %q (not %s)\n", r.Anchor.Word, r.OldMacro)
	}

	fmt.Fprintf(w, "\n=== Port Mapping: %s ===\n", r.NewMacro)
	for _, b := range r.Plan {
		if !b.Connected {
			fmt.Fprintf(w, "  ✗ %-12s unconnected\n", b.Port)
			continue
		}
		fmt.Fprintf(w, "  ✓ %-12s <- %s (%s via %s)\n", b.Port, b.Expression, b.OldPort, b.Source)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "\n=== Warnings ===\n")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "⚠ %s\n", warn)
		}
	}

	if len(r.Findings) > 0 {
		fmt.Fprintf(w, "\n=== Audit Findings ===\n")
		for _, f := range r.Findings {
			icon := "ℹ"
			if f.Severity == policy.SeverityError {
				icon = "✗"
			} else if f.Severity == policy.SeverityWarning {
				icon = "⚠"
			}
			fmt.Fprintf(w, "%s [%s] %s\n", icon, f.Rule, f.Message)
		}
	}

	fmt.Fprintf(w, "\n=== Summary ===\n")
	fmt.Fprintf(w, "  Bindings:    %d\n", r.Summary.Bindings)
	fmt.Fprintf(w, "  Unconnected: %d\n", r.Summary.Unconnected)
	fmt.Fprintf(w, "  Warnings:    %d\n", r.Summary.Warnings)
	fmt.Fprintf(w, "  Errors:      %d\n", r.Summary.Errors)
}

// PrintModule writes the port table of a resolved module.
func PrintModule(w io.Writer, mod hdl.Module) {
	fmt.Fprintf(w, "\n=== Module: %s ===\n", mod.Name)
	if mod.Inferred {
		fmt.Fprintf(w, "  (inferred from instance %s)\n", mod.InferredFrom)
	}
	for _, p := range mod.Ports {
		fmt.Fprintf(w, "  - %-15s %-10s %s\n", p.Name, p.Direction.Title(), p.Type)
	}
	if len(mod.Instances) > 0 {
		fmt.Fprintf(w, "\n=== Instances ===\n")
		for _, inst := range mod.Instances {
			fmt.Fprintf(w, "  %s: %s [%d-%d] %d connections\n", inst.Name, inst.Definition, inst.Start, inst.End, len(inst.Connections))
		}
	}
}

// PrintWarnings lists warnings under a section header; nothing is printed
// when there are none.
func PrintWarnings(w io.Writer, warnings []hdl.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n=== Warnings ===\n")
	for _, warn := range warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn)
	}
}

// Diff returns a unified diff from original to rewritten, empty when the two
// are equal.
func Diff(name, original, rewritten string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(rewritten),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
}
