package rewrite

import (
	"fmt"
	"strings"
)

// Style is the layout of a synthesized instantiation.
type Style struct {
	HeaderIndent int
	PortIndent   int
	// PortColumn is the width the port name is padded to.
	PortColumn  int
	Unconnected string
}

func DefaultStyle() Style {
	return Style{
		HeaderIndent: 2,
		PortIndent:   6,
		PortColumn:   10,
		Unconnected:  "/* UNCONNECTED */",
	}
}

// Render synthesizes the instantiation text for bindings:
//
//	  NEW_MACRO u_inst (
//	      .CLK        (clk),
//	      .Q          (q)
//	  );
//
// Unconnected bindings carry the Unconnected marker as their expression. The
// result has no trailing newline.
func Render(macro, instance string, bindings []Binding, style Style) string {
	header := strings.Repeat(" ", style.HeaderIndent)
	indent := strings.Repeat(" ", style.PortIndent)

	lines := make([]string, 0, len(bindings)+2)
	lines = append(lines, fmt.Sprintf("%s%s %s (", header, macro, instance))
	for i, b := range bindings {
		expr := b.Expression
		if !b.Connected() {
			expr = style.Unconnected
		}
		comma := ","
		if i == len(bindings)-1 {
			comma = ""
		}
		lines = append(lines, fmt.Sprintf("%s.%-*s (%s)%s", indent, style.PortColumn, b.Port, expr, comma))
	}
	lines = append(lines, header+");")
	return strings.Join(lines, "\n")
}
