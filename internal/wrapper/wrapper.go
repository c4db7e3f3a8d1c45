// Package wrapper generates a new module with the same ports as an existing
// one whose body is a single instance of a macro. Macro ports are bound to
// the module's ports by the name heuristics in package match.
package wrapper

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/logging"
	"github.com/Emin017/macro-replacer/internal/match"
)

// InstanceName is the name given to the macro instance inside the wrapper.
const InstanceName = "u_mem"

// Binding is one macro port and the wrapper port chosen for it. Candidate is
// empty when no heuristic matched.
type Binding struct {
	Port      string
	Direction hdl.Direction
	Type      string
	Candidate string
	Rule      string
}

type Result struct {
	Text     string
	Bindings []Binding
	Warnings []hdl.Warning
}

type Generator struct {
	Matcher *match.Matcher
	Logger  *zap.Logger
}

func New(logger *zap.Logger) *Generator {
	return &Generator{Matcher: match.NewMatcher(), Logger: logging.OrNop(logger)}
}

// Generate renders module target.Name around one instance of macro. macroPorts
// may be empty, in which case the instance has no port list entries.
func (g *Generator) Generate(target hdl.Module, macro string, macroPorts []hdl.Port) Result {
	var res Result

	inputs, outputs := target.Signals()
	known := match.Signals{Inputs: inputs, Outputs: outputs}

	if len(macroPorts) == 0 {
		res.Warnings = append(res.Warnings, hdl.Warning{
			Kind:    hdl.WarnEmptyMacro,
			Subject: macro,
			Message: fmt.Sprintf("no ports known for macro %s; instance will be empty", macro),
		})
	}

	for _, p := range macroPorts {
		b := Binding{Port: p.Name, Direction: p.Direction, Type: p.Type}
		if b.Type == "" {
			b.Type = hdl.DefaultPortType
		}
		if sig, rule, ok := g.Matcher.Match(p, known); ok {
			b.Candidate, b.Rule = sig, rule
			g.Logger.Debug("matched macro port", zap.String("port", p.Name), zap.String("signal", sig), zap.String("rule", rule))
		} else {
			res.Warnings = append(res.Warnings, hdl.Warning{
				Kind:    hdl.WarnPortMatch,
				Subject: p.Name,
				Message: fmt.Sprintf("no wrapper port found for macro port %s; left open", p.Name),
			})
		}
		res.Bindings = append(res.Bindings, b)
	}

	for _, w := range res.Warnings {
		g.Logger.Warn(w.Message, zap.String("kind", w.Kind), zap.String("subject", w.Subject))
	}

	res.Text = render(target, macro, res.Bindings)
	return res
}

func declType(typ string) string {
	if typ == "reg" {
		return hdl.DefaultPortType
	}
	return typ
}

func render(target hdl.Module, macro string, bindings []Binding) string {
	var sb strings.Builder

	decls := make([]string, 0, len(target.Ports))
	for _, p := range target.Ports {
		typ := declType(p.Type)
		if typ != "" && typ != hdl.DefaultPortType {
			decls = append(decls, fmt.Sprintf("%s %s %s", p.Direction, typ, p.Name))
		} else {
			decls = append(decls, fmt.Sprintf("%s %s", p.Direction, p.Name))
		}
	}
	fmt.Fprintf(&sb, "module %s(\n", target.Name)
	if len(decls) > 0 {
		sb.WriteString("    " + strings.Join(decls, ",\n    ") + "\n")
	}
	sb.WriteString(");\n\n")

	fmt.Fprintf(&sb, "    %s %s (\n", macro, InstanceName)
	for i, b := range bindings {
		comma := ","
		if i == len(bindings)-1 {
			comma = ""
		}
		fmt.Fprintf(&sb, "        .%s(%s)%s // %s %s\n", b.Port, b.Candidate, comma, b.Direction.Title(), b.Type)
	}
	sb.WriteString("    );\n\nendmodule\n")

	return sb.String()
}
