package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Emin017/macro-replacer/internal/hdl"
)

func in(name string) hdl.Port  { return hdl.Port{Name: name, Direction: hdl.Input} }
func out(name string) hdl.Port { return hdl.Port{Name: name, Direction: hdl.Output} }

func TestPlanScenario(t *testing.T) {
	old := NewConnections(
		OldConnection{Port: "CLK", Direction: hdl.Input, Expression: "clk"},
		OldConnection{Port: "CW", Direction: hdl.Input, Expression: "wen_sig"},
		OldConnection{Port: "D", Direction: hdl.Input, Expression: "d"},
		OldConnection{Port: "Q", Direction: hdl.Output, Expression: "q"},
	)
	plan := NewPlanner(nil, true).Plan([]hdl.Port{in("CLK"), in("WEN"), in("D"), out("Q")}, old)

	want := []Binding{
		{Port: "CLK", Direction: hdl.Input, Expression: "clk", OldPort: "CLK", OldDirection: hdl.Input, Source: SourceExact},
		{Port: "WEN", Direction: hdl.Input, Expression: "wen_sig", OldPort: "CW", OldDirection: hdl.Input, Source: SourceRename},
		{Port: "D", Direction: hdl.Input, Expression: "d", OldPort: "D", OldDirection: hdl.Input, Source: SourceExact},
		{Port: "Q", Direction: hdl.Output, Expression: "q", OldPort: "Q", OldDirection: hdl.Output, Source: SourceExact},
	}
	if diff := cmp.Diff(want, plan.Bindings); diff != "" {
		t.Fatalf("plan (-want +got):\n%s", diff)
	}
	if len(plan.Warnings) != 0 || len(plan.Dropped) != 0 {
		t.Fatalf("unexpected warnings %v / dropped %v", plan.Warnings, plan.Dropped)
	}

	text := Render("NEW_MACRO", "u_inst", plan.Bindings, DefaultStyle())
	flat := strings.Join(strings.Fields(text), " ")
	if !strings.Contains(flat, "NEW_MACRO u_inst ( .CLK (clk), .WEN (wen_sig), .D (d), .Q (q) );") {
		t.Fatalf("rendered text:\n%s", text)
	}
}

func TestPlanPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		old        []OldConnection
		port       hdl.Port
		wantExpr   string
		wantSource Source
	}{
		{
			name:       "exact beats fuzzy",
			old:        []OldConnection{{Port: "CLK_X", Expression: "a"}, {Port: "clkx", Expression: "b"}},
			port:       in("clkx"),
			wantExpr:   "b",
			wantSource: SourceExact,
		},
		{
			name:       "fuzzy beats rename",
			old:        []OldConnection{{Port: "clk", Expression: "a"}, {Port: "CLK_CORE", Expression: "b"}},
			port:       in("CLKCORE"),
			wantExpr:   "b",
			wantSource: SourceFuzzy,
		},
		{
			name:       "rename takes first old port in declaration order",
			old:        []OldConnection{{Port: "CLK", Expression: "a"}, {Port: "clk_", Expression: "b"}},
			port:       in("MEM_CLK"),
			wantExpr:   "a",
			wantSource: SourceRename,
		},
		{
			name:       "rename order follows the source",
			old:        []OldConnection{{Port: "clk_", Expression: "b"}, {Port: "CLK", Expression: "a"}},
			port:       in("MEM_CLK"),
			wantExpr:   "b",
			wantSource: SourceRename,
		},
		{
			name:       "bwen renamed to bweb",
			old:        []OldConnection{{Port: "BWEN", Expression: "mask"}},
			port:       in("BWEB_N"),
			wantExpr:   "mask",
			wantSource: SourceRename,
		},
		{
			name:       "heuristic after names fail",
			old:        []OldConnection{{Port: "clk_i", Direction: hdl.Input, Expression: "c"}, {Port: "addr_i", Direction: hdl.Input, Expression: "x"}},
			port:       in("A"),
			wantExpr:   "x",
			wantSource: SourceHeuristic,
		},
		{
			name:       "single old output",
			old:        []OldConnection{{Port: "rdata", Direction: hdl.Output, Expression: "r"}},
			port:       out("Q"),
			wantExpr:   "r",
			wantSource: SourceHeuristic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := NewPlanner(nil, true).Plan([]hdl.Port{tt.port}, NewConnections(tt.old...))
			b := plan.Bindings[0]
			if b.Expression != tt.wantExpr || b.Source != tt.wantSource {
				t.Fatalf("binding = %+v, want %q via %s", b, tt.wantExpr, tt.wantSource)
			}
		})
	}
}

// An old output drives one new output only; extra outputs stay open.
func TestPlanHeuristicNeverReusesOutput(t *testing.T) {
	old := NewConnections(
		OldConnection{Port: "CLK", Direction: hdl.Input, Expression: "clk"},
		OldConnection{Port: "Q", Direction: hdl.Output, Expression: "q"},
	)

	tests := map[string][]hdl.Port{
		"extra output after":  {in("CLK"), out("Q"), out("QB")},
		"extra output before": {in("CLK"), out("QB"), out("Q")},
	}
	for name, ports := range tests {
		t.Run(name, func(t *testing.T) {
			plan := NewPlanner(nil, true).Plan(ports, old)

			got := map[string]string{}
			for _, b := range plan.Bindings {
				got[b.Port] = string(b.Source) + ":" + b.Expression
			}
			want := map[string]string{"CLK": "exact:clk", "Q": "exact:q", "QB": "unconnected:"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("bindings (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{hdl.WarnPortMatch}, kinds(plan.Warnings)); diff != "" {
				t.Fatalf("warnings (-want +got):\n%s", diff)
			}
			if plan.Warnings[0].Subject != "QB" {
				t.Fatalf("warning subject = %s, want QB", plan.Warnings[0].Subject)
			}
		})
	}
}

func TestPlanHeuristicOutputUsedOnce(t *testing.T) {
	old := NewConnections(OldConnection{Port: "dout", Direction: hdl.Output, Expression: "r"})
	plan := NewPlanner(nil, true).Plan([]hdl.Port{out("QA"), out("QB")}, old)
	if b := plan.Bindings[0]; b.Source != SourceHeuristic || b.Expression != "r" {
		t.Fatalf("QA = %+v, want r via heuristic", b)
	}
	if b := plan.Bindings[1]; b.Connected() {
		t.Fatalf("QB = %+v, want unconnected", b)
	}
}

func TestPlanWithoutHeuristics(t *testing.T) {
	old := NewConnections(OldConnection{Port: "rdata", Direction: hdl.Output, Expression: "r"})
	plan := NewPlanner(nil, false).Plan([]hdl.Port{out("Q")}, old)
	if plan.Bindings[0].Connected() {
		t.Fatalf("expected Q unconnected, got %+v", plan.Bindings[0])
	}
	if diff := cmp.Diff([]string{hdl.WarnPortMatch, hdl.WarnDroppedConnection}, kinds(plan.Warnings)); diff != "" {
		t.Fatalf("warnings (-want +got):\n%s", diff)
	}
	if plan.Unconnected() != 1 {
		t.Fatalf("Unconnected() = %d", plan.Unconnected())
	}
}

func TestPlanExtraRenames(t *testing.T) {
	old := NewConnections(OldConnection{Port: "ME", Expression: "enable"})
	extra := []RenameRule{{Old: []string{"me"}, New: "cen"}}
	plan := NewPlanner(extra, false).Plan([]hdl.Port{in("CEN")}, old)
	if b := plan.Bindings[0]; b.Source != SourceRename || b.Expression != "enable" {
		t.Fatalf("custom rename not applied: %+v", b)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	old := NewConnections(
		OldConnection{Port: "CLK", Direction: hdl.Input, Expression: "clk"},
		OldConnection{Port: "ADDR", Direction: hdl.Input, Expression: "a"},
		OldConnection{Port: "Q", Direction: hdl.Output, Expression: "q"},
	)
	ports := []hdl.Port{in("CLKA"), in("AA"), out("QA"), in("X")}
	first := NewPlanner(nil, true).Plan(ports, old)
	for range 20 {
		if diff := cmp.Diff(first, NewPlanner(nil, true).Plan(ports, old)); diff != "" {
			t.Fatalf("plan changed between runs:\n%s", diff)
		}
	}
}

func TestExtractConnections(t *testing.T) {
	inst := hdl.Instance{Connections: []hdl.Connection{
		{Port: "A", Expression: "a0", Connected: true},
		{Port: "B", Expression: "", Connected: true},
		{Port: "", Expression: "orphan", Connected: true},
		{Port: "C", Expression: "c", Connected: false},
		{Port: "D", Expression: "d", Connected: true},
		{Port: "A", Expression: "a1", Connected: true},
	}}
	c := ExtractConnections(inst)

	var got []string
	for _, e := range c.All() {
		got = append(got, e.Port+"="+e.Expression)
	}
	if diff := cmp.Diff([]string{"A=a1", "D=d"}, got); diff != "" {
		t.Fatalf("connections (-want +got):\n%s", diff)
	}
}

func TestFindInstance(t *testing.T) {
	mod := hdl.Module{Name: "top", Instances: []hdl.Instance{
		{Name: "u_fifo", Definition: "FIFO"},
		{Name: "u0", Definition: "RAM"},
		{Name: "u1", Definition: "RAM"},
		{Name: "u2", Definition: "RAM"},
	}}

	inst, others, err := FindInstance(mod, "RAM", "")
	if err != nil {
		t.Fatalf("FindInstance: %v", err)
	}
	if inst.Name != "u0" {
		t.Fatalf("got %s, want first instance u0", inst.Name)
	}
	if diff := cmp.Diff([]string{"u1", "u2"}, others); diff != "" {
		t.Fatalf("others (-want +got):\n%s", diff)
	}

	inst, others, err = FindInstance(mod, "RAM", "u2")
	if err != nil || inst.Name != "u2" || len(others) != 0 {
		t.Fatalf("FindInstance(u2) = %s, %v, %v", inst.Name, others, err)
	}

	for _, tc := range [][2]string{{"ROM", ""}, {"FIFO", "u0"}} {
		if _, _, err := FindInstance(mod, tc[0], tc[1]); !errors.Is(err, ErrInstanceNotFound) {
			t.Errorf("FindInstance(%s, %q) err = %v, want ErrInstanceNotFound", tc[0], tc[1], err)
		}
	}
}

func TestRenderUnconnectedMarker(t *testing.T) {
	bindings := []Binding{
		{Port: "X", Source: SourceUnconnected},
		{Port: "Q", Expression: "q", Source: SourceExact},
	}
	got := Render("NEW", "u", bindings, DefaultStyle())
	want := "  NEW u (\n" +
		"      .X          (/* UNCONNECTED */),\n" +
		"      .Q          (q)\n" +
		"  );"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("render (-want +got):\n%s", diff)
	}

	style := Style{HeaderIndent: 0, PortIndent: 2, PortColumn: 0, Unconnected: ""}
	if got := Render("NEW", "u", bindings[:1], style); got != "NEW u (\n  .X ()\n);" {
		t.Fatalf("compact render = %q", got)
	}
}
