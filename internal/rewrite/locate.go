package rewrite

import (
	"errors"
	"fmt"

	"github.com/Emin017/macro-replacer/internal/hdl"
)

var ErrInstanceNotFound = errors.New("instance not found")

// FindInstance returns the first instance in mod whose definition is macro.
// A non-empty name additionally requires the instance name to match. others
// lists the remaining instances of macro when name is empty, so the caller
// can tell the user the choice was not unique.
func FindInstance(mod hdl.Module, macro, name string) (inst hdl.Instance, others []string, err error) {
	found := false
	for _, candidate := range mod.Instances {
		if candidate.Definition != macro {
			continue
		}
		if name != "" && candidate.Name != name {
			continue
		}
		if !found {
			inst, found = candidate, true
			continue
		}
		others = append(others, candidate.Name)
	}
	if !found {
		if name != "" {
			return hdl.Instance{}, nil, fmt.Errorf("%w: no instance %s of %s in module %s", ErrInstanceNotFound, name, macro, mod.Name)
		}
		return hdl.Instance{}, nil, fmt.Errorf("%w: no instance of %s in module %s", ErrInstanceNotFound, macro, mod.Name)
	}
	return inst, others, nil
}

// OldConnection is one wired port of the instance being replaced.
type OldConnection struct {
	Port       string
	Direction  hdl.Direction
	Expression string
}

// Connections maps old port names to the expressions wired to them and
// remembers source declaration order, which the planner uses to break ties.
type Connections struct {
	entries []OldConnection
	index   map[string]int
}

// ExtractConnections keeps the connections of inst that have both a port name
// and a non-empty expression. Connections the analyzer marks as not connected
// are skipped. A port listed twice keeps its first position and the last
// expression.
func ExtractConnections(inst hdl.Instance) *Connections {
	c := &Connections{index: make(map[string]int)}
	for _, conn := range inst.Connections {
		if conn.Port == "" || conn.Expression == "" || !conn.Connected {
			continue
		}
		c.add(OldConnection{Port: conn.Port, Direction: conn.Direction, Expression: conn.Expression})
	}
	return c
}

// NewConnections builds a table from explicit entries, in order.
func NewConnections(entries ...OldConnection) *Connections {
	c := &Connections{index: make(map[string]int)}
	for _, e := range entries {
		c.add(e)
	}
	return c
}

func (c *Connections) add(e OldConnection) {
	if i, ok := c.index[e.Port]; ok {
		c.entries[i] = e
		return
	}
	c.index[e.Port] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Get returns the connection for an exact port name.
func (c *Connections) Get(port string) (OldConnection, bool) {
	i, ok := c.index[port]
	if !ok {
		return OldConnection{}, false
	}
	return c.entries[i], true
}

// All returns the connections in declaration order.
func (c *Connections) All() []OldConnection {
	return c.entries
}

func (c *Connections) Len() int {
	return len(c.entries)
}

// Signals partitions the old port names by direction for the heuristic
// matcher. Inout connections are offered as neither.
func (c *Connections) Signals() (inputs, outputs []string) {
	for _, e := range c.entries {
		switch e.Direction {
		case hdl.Input:
			inputs = append(inputs, e.Port)
		case hdl.Output:
			outputs = append(outputs, e.Port)
		}
	}
	return inputs, outputs
}
