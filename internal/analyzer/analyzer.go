// Package analyzer runs the external structural analyzer on a source file and
// turns its JSON output into the hdl model.
//
// The analyzer is a black box: it is invoked as
//
//	<analyzer> <source file> <module name> --json <output file>
//
// and writes a single JSON document (see hdl.Inspection) to the output file.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Emin017/macro-replacer/internal/hdl"
	"github.com/Emin017/macro-replacer/internal/logging"
	"github.com/Emin017/macro-replacer/internal/validator"
)

// EnvBinary overrides analyzer discovery.
const EnvBinary = "MACRO_REPLACER_ANALYZER"

// DefaultBinaryName is looked up on PATH when nothing else is configured.
const DefaultBinaryName = "inspector"

var (
	ErrUnavailable    = errors.New("analyzer unavailable")
	ErrExecution      = errors.New("analyzer execution failed")
	ErrOutput         = errors.New("analyzer output invalid")
	ErrModuleNotFound = errors.New("module not found")
)

// ExecError is returned when the analyzer process exits unsuccessfully.
type ExecError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: %s exited with code %d", ErrExecution, filepath.Base(e.Binary), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExecError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// Analyzer invokes one analyzer binary.
type Analyzer struct {
	Binary  string
	Timeout time.Duration
	Logger  *zap.Logger

	validator *validator.Validator
}

// New locates the analyzer binary and prepares the output contract check.
// explicit, when non-empty, must name an executable.
func New(explicit string, timeout time.Duration, logger *zap.Logger) (*Analyzer, error) {
	bin, err := Locate(explicit)
	if err != nil {
		return nil, err
	}
	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("init analyzer validator: %w", err)
	}
	return &Analyzer{
		Binary:    bin,
		Timeout:   timeout,
		Logger:    logging.OrNop(logger),
		validator: v,
	}, nil
}

// Locate finds the analyzer binary. Search order:
//  1. explicit (from configuration)
//  2. $MACRO_REPLACER_ANALYZER
//  3. inspector/build/inspector and inspector next to the running executable
//  4. inspector on PATH
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if existsExecutable(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("%w: configured analyzer is not executable: %s", ErrUnavailable, explicit)
	}

	if env := os.Getenv(EnvBinary); env != "" {
		if existsExecutable(env) {
			return env, nil
		}
		return "", fmt.Errorf("%w: %s is set but not executable: %s", ErrUnavailable, EnvBinary, env)
	}

	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		candidates := []string{
			filepath.Join(base, "inspector", "build", DefaultBinaryName),
			filepath.Join(base, DefaultBinaryName),
		}
		for _, candidate := range candidates {
			if existsExecutable(candidate) {
				return candidate, nil
			}
		}
	}

	if path, err := exec.LookPath(DefaultBinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s not found (set %s or analyzer.path)", ErrUnavailable, DefaultBinaryName, EnvBinary)
}

func existsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Inspect runs the analyzer for moduleName in sourceFile and decodes its
// output. The scratch output file is removed on every path.
func (a *Analyzer) Inspect(ctx context.Context, sourceFile, moduleName string) (*hdl.Inspection, error) {
	a.Logger.Info("analyzing module", zap.String("file", sourceFile), zap.String("module", moduleName))

	tmp, err := os.CreateTemp("", "macro-replacer-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating analyzer output file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.Binary, sourceFile, moduleName, "--json", tmpPath)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExecError{
			Binary:   a.Binary,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	a.Logger.Debug("analyzer finished", zap.String("module", moduleName), zap.Duration("took", time.Since(start)))

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrOutput, tmpPath, err)
	}
	return a.Decode(data)
}

// Decode validates raw analyzer output against the contract and decodes it.
func (a *Analyzer) Decode(data []byte) (*hdl.Inspection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrOutput)
	}
	if a.validator != nil {
		if err := a.validator.ValidateInspectionJSON(data); err != nil {
			for _, v := range a.validator.InspectionErrors(data) {
				a.Logger.Warn("analyzer output violates contract", zap.String("violation", v))
			}
			return nil, fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}

	var ins hdl.Inspection
	if err := json.Unmarshal(data, &ins); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return &ins, nil
}
