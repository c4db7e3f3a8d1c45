// Package match binds macro ports to already-known signal names.
//
// The heuristics are an ordered rule table. Each rule decides whether it
// applies to a port and, if so, tries to pick a candidate from the known
// signals. Rules are evaluated in order until one of them yields a candidate,
// so new rules can be inserted or reordered without touching control flow.
package match

import (
	"strings"

	"github.com/Emin017/macro-replacer/internal/hdl"
)

// Clean folds case and removes underscores. Two port names are a fuzzy match
// when their cleaned forms are equal.
func Clean(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// Signals are the names a port can be bound to, split by direction and kept
// in declaration order. The first candidate in order always wins a tie.
type Signals struct {
	Inputs  []string
	Outputs []string
}

// Rule is one entry of the heuristic table. Applies receives the port name
// as declared; implementations lower-case as needed.
type Rule struct {
	Name    string
	Applies func(port string, dir hdl.Direction) bool
	Resolve func(port string, known Signals) (string, bool)
}

// DefaultRules returns the built-in table, most certain signal first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "single-output",
			Applies: func(_ string, dir hdl.Direction) bool {
				return dir == hdl.Output
			},
			Resolve: func(_ string, known Signals) (string, bool) {
				if len(known.Outputs) == 1 {
					return known.Outputs[0], true
				}
				return "", false
			},
		},
		{
			Name:    "clock",
			Applies: inputContaining("clk"),
			Resolve: firstInput(contains("clk")),
		},
		{
			Name:    "chip-enable",
			Applies: inputContaining("cen"),
			Resolve: firstInput(contains("en")),
		},
		{
			Name:    "byte-write-enable",
			Applies: inputContaining("bwen"),
			Resolve: firstInput(contains("bwen")),
		},
		{
			Name: "write-enable",
			Applies: func(port string, dir hdl.Direction) bool {
				p := strings.ToLower(port)
				return dir == hdl.Input && strings.Contains(p, "wen") && !strings.Contains(p, "bwen")
			},
			Resolve: func(port string, known Signals) (string, bool) {
				if s, ok := firstInput(contains("w", "en"))(port, known); ok {
					return s, true
				}
				return firstInput(contains("en"))(port, known)
			},
		},
		{
			Name: "address",
			Applies: func(port string, dir hdl.Direction) bool {
				return dir == hdl.Input && (strings.Contains(strings.ToLower(port), "addr") || port == "A")
			},
			Resolve: firstInput(contains("addr")),
		},
		{
			Name: "data",
			Applies: func(port string, dir hdl.Direction) bool {
				return dir == hdl.Input && (strings.Contains(strings.ToLower(port), "data") || port == "D")
			},
			Resolve: firstInput(contains("data")),
		},
	}
}

func inputContaining(sub string) func(string, hdl.Direction) bool {
	return func(port string, dir hdl.Direction) bool {
		return dir == hdl.Input && strings.Contains(strings.ToLower(port), sub)
	}
}

// contains reports whether a lower-cased candidate holds every substring.
func contains(subs ...string) func(string) bool {
	return func(candidate string) bool {
		c := strings.ToLower(candidate)
		for _, s := range subs {
			if !strings.Contains(c, s) {
				return false
			}
		}
		return true
	}
}

func firstInput(pred func(string) bool) func(string, Signals) (string, bool) {
	return func(_ string, known Signals) (string, bool) {
		for _, in := range known.Inputs {
			if pred(in) {
				return in, true
			}
		}
		return "", false
	}
}

// Matcher evaluates a rule table.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a matcher over rules; with no rules it uses DefaultRules.
func NewMatcher(rules ...Rule) *Matcher {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Matcher{rules: rules}
}

// Match returns the candidate signal for port and the name of the rule that
// produced it. ok is false when no rule applies or every applicable rule
// comes up empty.
func (m *Matcher) Match(port hdl.Port, known Signals) (signal, rule string, ok bool) {
	for _, r := range m.rules {
		if !r.Applies(port.Name, port.Direction) {
			continue
		}
		if s, found := r.Resolve(port.Name, known); found {
			return s, r.Name, true
		}
	}
	return "", "", false
}

// Rules returns the rule names in evaluation order.
func (m *Matcher) Rules() []string {
	names := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		names = append(names, r.Name)
	}
	return names
}
