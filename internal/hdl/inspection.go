package hdl

// Inspection is the JSON document the analyzer writes for one
// (source file, module name) query. Definition is nil when the module has no
// definition in the source; Instances lists every instantiation of the module
// found anywhere in the source.
type Inspection struct {
	Definition *ModuleJSON    `json:"definition,omitempty"`
	Instances  []InstanceJSON `json:"instances,omitempty"`
}

type ModuleJSON struct {
	Name      string         `json:"name"`
	Ports     []PortJSON     `json:"ports,omitempty"`
	Instances []InstanceJSON `json:"instances,omitempty"`
}

type PortJSON struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
	Type      string `json:"type,omitempty"`
}

type InstanceJSON struct {
	InstanceName   string           `json:"instanceName"`
	FullPath       string           `json:"fullPath,omitempty"`
	DefinitionName string           `json:"definitionName"`
	StartOffset    int              `json:"startOffset"`
	EndOffset      int              `json:"endOffset"`
	Connections    []ConnectionJSON `json:"connections,omitempty"`
}

// ConnectionJSON is one port connection of an instance. SignalType is
// overloaded by the analyzer: inside a definition's nested instances it holds
// the source text of the wired expression, for instances reported at top level
// it may hold the type of the connected signal.
type ConnectionJSON struct {
	PortName    string `json:"portName"`
	Direction   string `json:"direction,omitempty"`
	SignalType  string `json:"signalType,omitempty"`
	Width       string `json:"width,omitempty"`
	IsConnected *bool  `json:"isConnected,omitempty"`
}

// Module converts the decoded definition into the structural model.
func (m ModuleJSON) Module() Module {
	mod := Module{Name: m.Name}
	for _, p := range m.Ports {
		mod.Ports = append(mod.Ports, p.Port())
	}
	for _, inst := range m.Instances {
		mod.Instances = append(mod.Instances, inst.Instance())
	}
	return mod
}

func (p PortJSON) Port() Port {
	typ := p.Type
	if typ == "" {
		typ = DefaultPortType
	}
	return Port{
		Name:      p.Name,
		Direction: NormalizeDirection(p.Direction),
		Type:      typ,
	}
}

func (i InstanceJSON) Instance() Instance {
	inst := Instance{
		Name:       i.InstanceName,
		Definition: i.DefinitionName,
		FullPath:   i.FullPath,
		Start:      i.StartOffset,
		End:        i.EndOffset,
	}
	for _, c := range i.Connections {
		inst.Connections = append(inst.Connections, c.Connection())
	}
	return inst
}

func (c ConnectionJSON) Connection() Connection {
	connected := true
	if c.IsConnected != nil {
		connected = *c.IsConnected
	}
	return Connection{
		Port:       c.PortName,
		Direction:  NormalizeDirection(c.Direction),
		Expression: c.SignalType,
		Connected:  connected,
	}
}
