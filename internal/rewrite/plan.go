package rewrite

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/match"
)

// Source records which planner tier bound a port.
type Source string

const (
	SourceExact       Source = "exact"
	SourceFuzzy       Source = "fuzzy"
	SourceRename      Source = "rename"
	SourceLiteral     Source = "literal"
	SourceHeuristic   Source = "heuristic"
	SourceUnconnected Source = "unconnected"
)

// Binding is one entry of a rewrite plan: a new macro port and the old
// expression it receives. OldPort is empty for unconnected bindings.
type Binding struct {
	Port         string
	Direction    hdl.Direction
	Expression   string
	OldPort      string
	OldDirection hdl.Direction
	Source       Source
}

func (b Binding) Connected() bool {
	return b.Source != SourceUnconnected
}

// Plan is the ordered binding list for every new macro port, in declaration
// order, plus the old connections no binding used.
type Plan struct {
	Bindings []Binding
	Dropped  []OldConnection
	Warnings []hdl.Warning
}

// Unconnected counts bindings left without an expression.
func (p Plan) Unconnected() int {
	n := 0
	for _, b := range p.Bindings {
		if !b.Connected() {
			n++
		}
	}
	return n
}

// RenameRule maps old ports onto new ports whose names differ by more than
// case and underscores. Old holds cleaned old port names; New is a cleaned
// new port name, compared for equality or, with Contains, as a substring.
type RenameRule struct {
	Old      []string
	New      string
	Contains bool
}

func (r RenameRule) Matches(oldPort, newPort string) bool {
	if !slices.Contains(r.Old, match.Clean(oldPort)) {
		return false
	}
	if r.Contains {
		return strings.Contains(match.Clean(newPort), r.New)
	}
	return match.Clean(newPort) == r.New
}

// DefaultRenameRules is the built-in rename table.
func DefaultRenameRules() []RenameRule {
	return []RenameRule{
		{Old: []string{"clk"}, New: "clk", Contains: true},
		{Old: []string{"cw"}, New: "wen"},
		{Old: []string{"bwen", "bweb"}, New: "bweb", Contains: true},
	}
}

// Planner binds new macro ports to old connections. Heuristics nil disables
// the name-heuristic fallback.
type Planner struct {
	Renames    []RenameRule
	Heuristics *match.Matcher
}

// NewPlanner returns a planner with the built-in renames followed by extra.
func NewPlanner(extra []RenameRule, heuristics bool) *Planner {
	p := &Planner{Renames: append(DefaultRenameRules(), extra...)}
	if heuristics {
		p.Heuristics = match.NewMatcher()
	}
	return p
}

func (b *Binding) bind(c OldConnection, source Source, used map[string]bool) {
	b.Expression = c.Expression
	b.OldPort = c.Port
	b.OldDirection = c.Direction
	b.Source = source
	used[c.Port] = true
}

type tier struct {
	source Source
	find   func(p *Planner, port hdl.Port, old *Connections) (OldConnection, bool)
}

// tiers run in order for each port; the first hit wins.
var tiers = []tier{
	{SourceExact, func(_ *Planner, port hdl.Port, old *Connections) (OldConnection, bool) {
		return old.Get(port.Name)
	}},
	{SourceFuzzy, func(_ *Planner, port hdl.Port, old *Connections) (OldConnection, bool) {
		want := match.Clean(port.Name)
		for _, c := range old.All() {
			if match.Clean(c.Port) == want {
				return c, true
			}
		}
		return OldConnection{}, false
	}},
	{SourceRename, func(p *Planner, port hdl.Port, old *Connections) (OldConnection, bool) {
		for _, c := range old.All() {
			for _, r := range p.Renames {
				if r.Matches(c.Port, port.Name) {
					return c, true
				}
			}
		}
		return OldConnection{}, false
	}},
	{SourceLiteral, func(_ *Planner, port hdl.Port, old *Connections) (OldConnection, bool) {
		if port.Name != "CLK" {
			return OldConnection{}, false
		}
		return old.Get("CLK")
	}},
}

// heuristic offers the matcher every old input but only the old outputs no
// binding has taken yet. An output net has exactly one driver.
func (p *Planner) heuristic(port hdl.Port, old *Connections, used map[string]bool) (OldConnection, bool) {
	inputs, outputs := old.Signals()
	outputs = slices.DeleteFunc(outputs, func(name string) bool { return used[name] })
	name, _, ok := p.Heuristics.Match(port, match.Signals{Inputs: inputs, Outputs: outputs})
	if !ok {
		return OldConnection{}, false
	}
	return old.Get(name)
}

// Plan resolves every port of the new macro, in declaration order. The
// name-based tiers run over all ports before the heuristic pass, so a
// heuristic never claims an old output that a later port matches by name.
func (p *Planner) Plan(ports []hdl.Port, old *Connections) Plan {
	var plan Plan
	used := make(map[string]bool)

	plan.Bindings = make([]Binding, len(ports))
	for i, port := range ports {
		plan.Bindings[i] = Binding{Port: port.Name, Direction: port.Direction, Source: SourceUnconnected}
		for _, t := range tiers {
			if c, ok := t.find(p, port, old); ok {
				plan.Bindings[i].bind(c, t.source, used)
				break
			}
		}
	}

	if p.Heuristics != nil {
		for i, port := range ports {
			if plan.Bindings[i].Connected() {
				continue
			}
			if c, ok := p.heuristic(port, old, used); ok {
				plan.Bindings[i].bind(c, SourceHeuristic, used)
			}
		}
	}

	for _, b := range plan.Bindings {
		if !b.Connected() {
			plan.Warnings = append(plan.Warnings, hdl.Warning{
				Kind:    hdl.WarnPortMatch,
				Subject: b.Port,
				Message: fmt.Sprintf("could not map port %s; left unconnected", b.Port),
			})
		}
	}

	for _, c := range old.All() {
		if used[c.Port] {
			continue
		}
		plan.Dropped = append(plan.Dropped, c)
		plan.Warnings = append(plan.Warnings, hdl.Warning{
			Kind:    hdl.WarnDroppedConnection,
			Subject: c.Port,
			Message: fmt.Sprintf("old port %s (%s) is not wired to any new port", c.Port, c.Expression),
		})
	}

	return plan
}
