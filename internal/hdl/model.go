// Package hdl holds the structural model of a hardware design as reported by
// the external analyzer: modules, their ports, the instances nested inside
// them and the per-port connections of each instance.
package hdl

import "strings"

// Direction is a normalized port direction.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
	Inout  Direction = "inout"
)

// DefaultPortType is the type descriptor used when the analyzer gives none.
const DefaultPortType = "logic"

// NormalizeDirection maps an analyzer direction string onto Input, Output or
// Inout. The comparison is case-insensitive; an empty string means Input and
// anything that is neither purely "in" nor purely "out" (InOut, Ref, Unknown)
// becomes Inout.
func NormalizeDirection(s string) Direction {
	d := strings.ToLower(strings.TrimSpace(s))
	if d == "" {
		return Input
	}
	in := strings.Contains(d, "in")
	out := strings.Contains(d, "out")
	switch {
	case in && !out:
		return Input
	case out && !in:
		return Output
	}
	return Inout
}

// Title returns the direction with a leading capital ("Input").
func (d Direction) Title() string {
	if d == "" {
		return ""
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// Port is a named, directioned connection point on a module or macro.
type Port struct {
	Name      string
	Direction Direction
	Type      string
}

// Module is a module definition, or a definition inferred from one of its
// instantiations when the source has no definition for it.
type Module struct {
	Name      string
	Ports     []Port
	Instances []Instance

	// Inferred is set when Ports was derived from the connection list of
	// the instance named InferredFrom.
	Inferred     bool
	InferredFrom string
}

// Instance is one instantiation of a module or macro inside an enclosing
// module. Start and End are byte offsets into the enclosing source text and
// cover the instance name and port list only, not the type identifier that
// precedes it or the statement terminator that follows.
type Instance struct {
	Name        string
	Definition  string
	FullPath    string
	Start       int
	End         int
	Connections []Connection
}

// Connection binds one port of an instance to the literal source text of the
// expression wired to it.
type Connection struct {
	Port       string
	Direction  Direction
	Expression string
	Connected  bool
}

// Signals splits the module's port names by direction. Inout ports are in
// neither list.
func (m Module) Signals() (inputs, outputs []string) {
	for _, p := range m.Ports {
		switch p.Direction {
		case Input:
			inputs = append(inputs, p.Name)
		case Output:
			outputs = append(outputs, p.Name)
		}
	}
	return inputs, outputs
}

// PortNames returns the port names in declaration order.
func (m Module) PortNames() []string {
	names := make([]string, 0, len(m.Ports))
	for _, p := range m.Ports {
		names = append(names, p.Name)
	}
	return names
}
