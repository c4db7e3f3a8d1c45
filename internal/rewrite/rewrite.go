// Package rewrite replaces one macro instantiation in hardware source text.
//
// The pipeline is: locate the instance of the old macro in the enclosing
// module, extract its port connections, plan a binding for every port of the
// new macro, render the new instantiation and splice it over the old one.
// Only the widened instance range is touched; every other byte of the source
// is carried over unchanged and the result is never re-parsed.
package rewrite

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/logging"
)

// Request describes one replacement.
type Request struct {
	// Source is the full text of the file the module's offsets refer to.
	Source string
	// Module is the enclosing module with its nested instances.
	Module hdl.Module
	// OldMacro is the type name of the instance to replace.
	OldMacro string
	// NewMacro supplies the new type name and its ports.
	NewMacro hdl.Module
	// Instance optionally selects the instance by name.
	Instance string
}

// Result is a finished rewrite. Output is only meaningful when Rewrite
// returned no error.
type Result struct {
	Instance    hdl.Instance
	Connections *Connections
	Plan        Plan
	Replacement string
	Anchor      Anchor
	Output      string
	Warnings    []hdl.Warning
}

type Rewriter struct {
	Planner *Planner
	Style   Style
	Logger  *zap.Logger
}

// New returns a rewriter with the default planner when planner is nil.
func New(planner *Planner, style Style, logger *zap.Logger) *Rewriter {
	if planner == nil {
		planner = NewPlanner(nil, true)
	}
	return &Rewriter{Planner: planner, Style: style, Logger: logging.OrNop(logger)}
}

func (r *Rewriter) Rewrite(req Request) (*Result, error) {
	res := &Result{}

	inst, others, err := FindInstance(req.Module, req.OldMacro, req.Instance)
	if err != nil {
		return nil, err
	}
	res.Instance = inst
	r.Logger.Info("found instance",
		zap.String("instance", inst.Name),
		zap.Int("start", inst.Start),
		zap.Int("end", inst.End))
	if len(others) > 0 {
		r.warn(res, hdl.Warning{
			Kind:    hdl.WarnMultipleInstances,
			Subject: inst.Name,
			Message: fmt.Sprintf("%s is instantiated %d times; replacing %s, not %s",
				req.OldMacro, len(others)+1, inst.Name, strings.Join(others, ", ")),
		})
	}

	res.Connections = ExtractConnections(inst)
	r.Logger.Debug("existing connections", zap.Int("count", res.Connections.Len()))

	if len(req.NewMacro.Ports) == 0 {
		r.warn(res, hdl.Warning{
			Kind:    hdl.WarnEmptyMacro,
			Subject: req.NewMacro.Name,
			Message: fmt.Sprintf("no ports found for new macro %s; instantiation will be empty", req.NewMacro.Name),
		})
	}

	res.Plan = r.Planner.Plan(req.NewMacro.Ports, res.Connections)
	for _, b := range res.Plan.Bindings {
		if b.Connected() {
			r.Logger.Debug("mapped port",
				zap.String("port", b.Port),
				zap.String("expression", b.Expression),
				zap.String("old_port", b.OldPort),
				zap.String("source", string(b.Source)))
		}
	}
	for _, w := range res.Plan.Warnings {
		r.warn(res, w)
	}

	res.Anchor, err = Widen(req.Source, inst.Start, inst.End, req.OldMacro)
	if err != nil {
		return nil, err
	}
	if !res.Anchor.Matched {
		r.warn(res, hdl.Warning{
			Kind:    hdl.WarnSpliceAnchor,
			Subject: inst.Name,
			Message: fmt.Sprintf("preceding word %q does not match old macro %s; output may not parse", res.Anchor.Word, req.OldMacro),
		})
	}

	res.Replacement = Render(req.NewMacro.Name, inst.Name, res.Plan.Bindings, r.Style)
	if res.Anchor.Matched {
		// The original indentation in front of the type name stays in place.
		res.Replacement = strings.TrimPrefix(res.Replacement, strings.Repeat(" ", r.Style.HeaderIndent))
	}

	res.Output, err = Splice(req.Source, res.Anchor, res.Replacement)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Rewriter) warn(res *Result, w hdl.Warning) {
	r.Logger.Warn(w.Message, zap.String("kind", w.Kind), zap.String("subject", w.Subject))
	res.Warnings = append(res.Warnings, w)
}
