package hdl

import "fmt"

// Warning kinds. None of them stop a run; they are reported alongside the
// result so the user can follow up by hand.
const (
	WarnPortMatch          = "port-match"
	WarnSpliceAnchor       = "splice-anchor"
	WarnDroppedConnection  = "dropped-connection"
	WarnInferenceAmbiguous = "inference-ambiguous"
	WarnMultipleInstances  = "multiple-instances"
	WarnEmptyMacro         = "empty-macro"
)

// Warning is a non-fatal diagnostic. Subject names the port, instance or
// module the warning is about.
type Warning struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}
