// =============================================================================
// macro-replacer - Main Entry Point
// =============================================================================
//
// Retargets a design from one vendor macro to another by rewriting the
// instantiation in place, without touching the rest of the source.
//
// THE PIPELINE (replace):
//   1. The external analyzer describes the enclosing module as JSON
//   2. CUE validator enforces the analyzer contract (bad JSON = exit 2)
//   3. The instance of the old macro is located and its connections read
//   4. The analyzer describes the new macro; its ports are planned one by
//      one against the old connections
//   5. The new instantiation is rendered and spliced over the old one
//   6. OPA audits the rewrite; an "error" finding blocks the write
//
// WHEN A PORT COMES OUT UNCONNECTED:
//   Check the analyzer JSON first (is the connection there, with an
//   expression?), then the plan in the summary, then the rename rules.
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Emin017/macro-replacer/internal/analyzer"
	"github.com/Emin017/macro-replacer/internal/config"
	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/logging"
	"github.com/Emin017/macro-replacer/internal/match"
	"github.com/Emin017/macro-replacer/internal/policy"
	"github.com/Emin017/macro-replacer/internal/report"
	"github.com/Emin017/macro-replacer/internal/rewrite"
	"github.com/Emin017/macro-replacer/internal/validator"
	"github.com/Emin017/macro-replacer/internal/wrapper"
)

// Exit codes.
const (
	exitOK               = 0
	exitUsage            = 1
	exitAnalyzer         = 2
	exitModuleNotFound   = 3
	exitInstanceNotFound = 4
	exitIO               = 5
	exitBlocked          = 6
	exitInternal         = 7
)

var (
	errUsage = errors.New("usage")
	errIO    = errors.New("i/o failure")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch cmd := args[0]; cmd {
	case "replace":
		err = runReplace(args[1:], stdout, stderr)
	case "wrap":
		err = runWrap(args[1:], stdout, stderr)
	case "inspect":
		err = runInspect(args[1:], stdout, stderr)
	case "init":
		err = runInit(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n", cmd)
		printUsage(stderr)
		return exitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, analyzer.ErrModuleNotFound):
		return exitModuleNotFound
	case errors.Is(err, analyzer.ErrUnavailable),
		errors.Is(err, analyzer.ErrExecution),
		errors.Is(err, analyzer.ErrOutput):
		return exitAnalyzer
	case errors.Is(err, rewrite.ErrInstanceNotFound):
		return exitInstanceNotFound
	case errors.Is(err, errIO), errors.Is(err, rewrite.ErrInvalidRange):
		return exitIO
	case errors.Is(err, policy.ErrBlocked):
		return exitBlocked
	}
	return exitInternal
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: macro-replacer <command> [options]

Commands:
  replace   Replace one macro instance with another macro
  wrap      Generate a wrapper module around a macro
  inspect   Print the ports and instances the analyzer reports for a module
  init      Create a macro_replacer.json configuration file

Replace options:
  --verilog FILE          Source file containing the module
  --module NAME           Module that instantiates the old macro
  --old-macro NAME        Type name of the instance to replace
  --new-macro-file FILE   File defining the new macro
  --new-macro-name NAME   Name of the new macro
  --instance NAME         Instance to replace (default: first match)
  --out FILE              Output file (default: replaced_<source> next to the source)
  --report FILE           Write a JSON report
  --diff                  Print a unified diff of the change
  --dry-run               Do not write the output file

Wrap options:
  --verilog FILE          Source file containing the module
  --module NAME           Module whose ports the wrapper copies
  --macro NAME            Macro to instantiate
  --macro-def FILE        File defining the macro (optional)
  --out FILE              Output file (default: new_<module>.v)

Common options:
  -c, --config FILE       Configuration file
  -v, --verbose           Enable debug logging

Exit codes:
  0 ok, 1 usage, 2 analyzer failure, 3 module not found, 4 instance not found,
  5 I/O failure, 6 blocked by audit, 7 internal error

Configuration:
  macro-replacer looks for configuration in:
    1. ./macro_replacer.json
    2. ./.macro_replacer.json
    3. <source dir>/macro_replacer.json
    4. ~/.config/macro_replacer/config.json

  The analyzer binary is taken from analyzer.path, then $MACRO_REPLACER_ANALYZER,
  then inspector next to this executable or on PATH.`)
}

// common holds the options every analyzer-backed command takes.
type common struct {
	configPath string
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "c", "", "configuration file")
	fs.StringVar(&c.configPath, "config", "", "configuration file")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logging")
	fs.BoolVar(&c.verbose, "verbose", false, "enable debug logging")
}

// env is what a command needs once its flags are parsed.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	analyzer *analyzer.Analyzer
}

func (c *common) setup(sourcePath string, stderr io.Writer) (*env, error) {
	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load(sourcePath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	logger := logging.New(stderr, c.verbose)

	timeout, err := cfg.Analyzer.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	an, err := analyzer.New(cfg.Analyzer.Path, timeout, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("using analyzer", zap.String("path", an.Binary))

	return &env{cfg: cfg, logger: logger, analyzer: an}, nil
}

// resolve runs the analyzer for one module and resolves its definition.
func (e *env) resolve(ctx context.Context, file, module string) (hdl.Module, []hdl.Warning, error) {
	ins, err := e.analyzer.Inspect(ctx, file, module)
	if err != nil {
		return hdl.Module{}, nil, err
	}
	mod, warnings, err := analyzer.ResolveModule(ins, module)
	if err != nil {
		return hdl.Module{}, nil, fmt.Errorf("%s: %w", file, err)
	}
	if mod.Inferred {
		e.logger.Info("definition not found, ports inferred from instance",
			zap.String("module", module), zap.String("instance", mod.InferredFrom),
			zap.Strings("ports", mod.PortNames()))
	}
	for _, w := range warnings {
		e.logger.Warn(w.Message, zap.String("kind", w.Kind), zap.String("subject", w.Subject))
	}
	return mod, warnings, nil
}

func required(fs *flag.FlagSet, values map[string]string) error {
	for _, name := range []string{"verilog", "module", "old-macro", "new-macro-file", "new-macro-name", "macro"} {
		if v, ok := values[name]; ok && v == "" {
			return fmt.Errorf("%w: --%s is required (see %s -h)", errUsage, name, fs.Name())
		}
	}
	return nil
}

func renameRules(cfg *config.Config) []rewrite.RenameRule {
	var rules []rewrite.RenameRule
	for _, r := range cfg.Match.RenameRules {
		old := make([]string, 0, len(r.Old))
		for _, o := range r.Old {
			old = append(old, match.Clean(o))
		}
		rules = append(rules, rewrite.RenameRule{
			Old:      old,
			New:      match.Clean(r.New),
			Contains: r.Match == "contains",
		})
	}
	return rules
}

func renderStyle(cfg *config.Config) rewrite.Style {
	style := rewrite.DefaultStyle()
	if cfg.Render.HeaderIndent != nil {
		style.HeaderIndent = *cfg.Render.HeaderIndent
	}
	if cfg.Render.PortIndent != nil {
		style.PortIndent = *cfg.Render.PortIndent
	}
	if cfg.Render.PortColumn != nil {
		style.PortColumn = *cfg.Render.PortColumn
	}
	if cfg.Render.Unconnected != "" {
		style.Unconnected = cfg.Render.Unconnected
	}
	return style
}

func runReplace(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	verilog := fs.String("verilog", "", "source file containing the module")
	module := fs.String("module", "", "module that instantiates the old macro")
	oldMacro := fs.String("old-macro", "", "type name of the instance to replace")
	newMacroFile := fs.String("new-macro-file", "", "file defining the new macro")
	newMacroName := fs.String("new-macro-name", "", "name of the new macro")
	instance := fs.String("instance", "", "instance to replace (default: first match)")
	out := fs.String("out", "", "output file")
	reportPath := fs.String("report", "", "write a JSON report to this file")
	diff := fs.Bool("diff", false, "print a unified diff of the change")
	dryRun := fs.Bool("dry-run", false, "do not write the output file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := required(fs, map[string]string{
		"verilog": *verilog, "module": *module, "old-macro": *oldMacro,
		"new-macro-file": *newMacroFile, "new-macro-name": *newMacroName,
	}); err != nil {
		return err
	}

	e, err := c.setup(*verilog, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()
	ctx := context.Background()

	target, warnings, err := e.resolve(ctx, *verilog, *module)
	if err != nil {
		return err
	}
	newMacro, macroWarnings, err := e.resolve(ctx, *newMacroFile, *newMacroName)
	if err != nil {
		return err
	}
	warnings = append(warnings, macroWarnings...)

	data, err := os.ReadFile(*verilog)
	if err != nil {
		return fmt.Errorf("%w: reading source: %w", errIO, err)
	}

	planner := rewrite.NewPlanner(renameRules(e.cfg), e.cfg.HeuristicFallbackEnabled())
	if planner.Heuristics != nil {
		e.logger.Debug("heuristic fallback enabled", zap.Strings("rules", planner.Heuristics.Rules()))
	}
	rw := rewrite.New(planner, renderStyle(e.cfg), e.logger)
	res, err := rw.Rewrite(rewrite.Request{
		Source:   string(data),
		Module:   target,
		OldMacro: *oldMacro,
		NewMacro: newMacro,
		Instance: *instance,
	})
	if err != nil {
		return err
	}
	warnings = append(warnings, res.Warnings...)

	engine, err := policy.New(e.cfg.Audit.PolicyDir)
	if err != nil {
		return err
	}
	audit, err := engine.Evaluate(ctx, policy.InputFromRewrite(*verilog, *oldMacro, newMacro.Name, res), e.cfg.GetRuleSeverity)
	if err != nil {
		return err
	}

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(filepath.Dir(*verilog), "replaced_"+filepath.Base(*verilog))
	}

	rep := report.Build(report.Meta{
		Source:   *verilog,
		Module:   *module,
		OldMacro: *oldMacro,
		NewMacro: newMacro.Name,
		Output:   outPath,
	}, res, warnings, audit)
	report.PrintSummary(stdout, rep)

	if *diff {
		d, err := report.Diff(filepath.Base(*verilog), string(data), res.Output)
		if err != nil {
			return fmt.Errorf("computing diff: %w", err)
		}
		fmt.Fprintf(stdout, "\n=== Diff ===\n%s", d)
	}

	if *reportPath != "" {
		v, err := validator.New()
		if err != nil {
			return err
		}
		if err := report.WriteJSON(*reportPath, rep, v); err != nil {
			return err
		}
		e.logger.Info("wrote report", zap.String("path", *reportPath))
	}

	if audit.Blocked() {
		return fmt.Errorf("%w: %d error finding(s); %s not written", policy.ErrBlocked, audit.Summary.Errors, outPath)
	}

	if *dryRun {
		fmt.Fprintf(stdout, "\nDry run: %s not written.\n", outPath)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(res.Output), 0644); err != nil {
		return fmt.Errorf("%w: writing output: %w", errIO, err)
	}
	fmt.Fprintf(stdout, "\nSuccessfully generated %s with replaced macro.\n", outPath)
	return nil
}

func runWrap(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("wrap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	verilog := fs.String("verilog", "", "source file containing the module")
	module := fs.String("module", "", "module whose ports the wrapper copies")
	macro := fs.String("macro", "", "macro to instantiate")
	macroDef := fs.String("macro-def", "", "file defining the macro")
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := required(fs, map[string]string{"verilog": *verilog, "module": *module, "macro": *macro}); err != nil {
		return err
	}

	e, err := c.setup(*verilog, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()
	ctx := context.Background()

	target, warnings, err := e.resolve(ctx, *verilog, *module)
	if err != nil {
		return err
	}

	var macroPorts []hdl.Port
	switch {
	case *macroDef == "":
		e.logger.Warn("no macro definition given; the instance will have no ports", zap.String("macro", *macro))
	case !fileExists(*macroDef):
		e.logger.Warn("macro definition file not found", zap.String("path", *macroDef))
	default:
		mod, macroWarnings, err := e.resolve(ctx, *macroDef, *macro)
		switch {
		case errors.Is(err, analyzer.ErrModuleNotFound):
			e.logger.Warn("could not extract macro ports", zap.String("macro", *macro), zap.String("path", *macroDef))
		case err != nil:
			return err
		default:
			macroPorts = mod.Ports
			warnings = append(warnings, macroWarnings...)
		}
	}

	res := wrapper.New(e.logger).Generate(target, *macro, macroPorts)
	warnings = append(warnings, res.Warnings...)

	outPath := *out
	if outPath == "" {
		outPath = "new_" + *module + ".v"
	}
	if err := os.WriteFile(outPath, []byte(res.Text), 0644); err != nil {
		return fmt.Errorf("%w: writing wrapper: %w", errIO, err)
	}
	fmt.Fprintf(stdout, "Generated %s\n", outPath)

	report.PrintModule(stdout, target)
	fmt.Fprintf(stdout, "\n=== Macro Bindings: %s ===\n", *macro)
	for _, b := range res.Bindings {
		if b.Candidate == "" {
			fmt.Fprintf(stdout, "  ✗ %-12s open\n", b.Port)
			continue
		}
		fmt.Fprintf(stdout, "  ✓ %-12s <- %s (%s)\n", b.Port, b.Candidate, b.Rule)
	}
	report.PrintWarnings(stdout, warnings)
	return nil
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	verilog := fs.String("verilog", "", "source file containing the module")
	module := fs.String("module", "", "module to inspect")
	asJSON := fs.Bool("json", false, "print the analyzer output as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := required(fs, map[string]string{"verilog": *verilog, "module": *module}); err != nil {
		return err
	}

	e, err := c.setup(*verilog, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()
	ctx := context.Background()

	if *asJSON {
		ins, err := e.analyzer.Inspect(ctx, *verilog, *module)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ins); err != nil {
			return fmt.Errorf("%w: encoding inspection: %w", errIO, err)
		}
		return nil
	}

	mod, warnings, err := e.resolve(ctx, *verilog, *module)
	if err != nil {
		return err
	}
	report.PrintModule(stdout, mod)
	report.PrintWarnings(stdout, warnings)
	return nil
}

func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	configPath := config.FileName
	if fs.NArg() > 0 {
		configPath = fs.Arg(0)
	}
	if fileExists(configPath) && !*force {
		return fmt.Errorf("%w: config file %s already exists (use --force to overwrite)", errUsage, configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("%w: %w", errIO, err)
	}

	fmt.Fprintf(stdout, "Created %s\n", configPath)
	fmt.Fprintln(stdout, "\nEdit this file to configure:")
	fmt.Fprintln(stdout, "  - The analyzer binary and its timeout")
	fmt.Fprintln(stdout, "  - Layout of the generated instantiation")
	fmt.Fprintln(stdout, "  - Extra port rename rules")
	fmt.Fprintln(stdout, "  - Audit rule severities")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
