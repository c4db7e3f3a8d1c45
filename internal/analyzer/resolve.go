package analyzer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Emin017/macro-replacer/internal/hdl"
)

// ResolveModule picks the module named name out of an inspection.
//
// A definition is used as-is. Without one, the module is inferred from the
// first reported instance: every connection becomes a port, its declared
// direction (Input when absent) becomes the port direction and its signal type
// field becomes the port type. Only the first instance is consulted; when
// other instances connect a different set of ports, an inference-ambiguous
// warning says so.
func ResolveModule(ins *hdl.Inspection, name string) (hdl.Module, []hdl.Warning, error) {
	if ins != nil && ins.Definition != nil {
		mod := ins.Definition.Module()
		if mod.Name == "" {
			mod.Name = name
		}
		return mod, nil, nil
	}
	if ins == nil || len(ins.Instances) == 0 {
		return hdl.Module{}, nil, fmt.Errorf("%w: %s has no definition and no instances", ErrModuleNotFound, name)
	}

	first := ins.Instances[0]
	mod := hdl.Module{
		Name:         name,
		Inferred:     true,
		InferredFrom: first.InstanceName,
	}
	for _, c := range first.Connections {
		typ := c.SignalType
		if typ == "" {
			typ = hdl.DefaultPortType
		}
		mod.Ports = append(mod.Ports, hdl.Port{
			Name:      c.PortName,
			Direction: hdl.NormalizeDirection(c.Direction),
			Type:      typ,
		})
	}

	var warnings []hdl.Warning
	want := portSet(first)
	for _, other := range ins.Instances[1:] {
		if got := portSet(other); !slices.Equal(want, got) {
			warnings = append(warnings, hdl.Warning{
				Kind:    hdl.WarnInferenceAmbiguous,
				Subject: other.InstanceName,
				Message: fmt.Sprintf("ports of %s inferred from instance %s [%s]; instance %s connects [%s]",
					name, first.InstanceName, strings.Join(want, ", "), other.InstanceName, strings.Join(got, ", ")),
			})
		}
	}

	return mod, warnings, nil
}

func portSet(inst hdl.InstanceJSON) []string {
	names := make([]string, 0, len(inst.Connections))
	for _, c := range inst.Connections {
		names = append(names, c.PortName)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
