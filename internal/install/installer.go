// Package install invokes a downloaded platform installer silently and
// reports the outcome. There is no rollback of a partially-applied
// installation; a failed install is a fatal, user-facing outcome.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/imputnet/helium-updater/internal/debug"
)

// SilentFlag puts the NSIS-style installer into silent mode.
const SilentFlag = "/S"

// DefaultTimeout bounds how long a silent install may run.
const DefaultTimeout = 5 * time.Minute

// ErrUnsupportedArtifact is returned for files the installer cannot run
// directly (e.g. the portable zip package, which is extracted instead).
var ErrUnsupportedArtifact = errors.New("artifact is not a runnable installer")

// InstallerFailedError reports a nonzero installer exit code.
type InstallerFailedError struct {
	Code int
}

func (e *InstallerFailedError) Error() string {
	return fmt.Sprintf("installer exited with code %d", e.Code)
}

// Result describes a completed installer run.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Service runs installers.
type Service interface {
	// Run launches the installer at path with the silent flag and waits
	// for it to exit. The caller must only pass files that have passed
	// every enabled verification step.
	Run(ctx context.Context, path string) (*Result, error)
}

type svc struct {
	timeout time.Duration
	args    []string
}

// New creates an installer service with the default silent flag and
// timeout.
func New() Service {
	return &svc{timeout: DefaultTimeout, args: []string{SilentFlag}}
}

// NewWith creates an installer service with custom arguments and timeout
// (for testing).
func NewWith(timeout time.Duration, args ...string) Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &svc{timeout: timeout, args: args}
}

func (s *svc) Run(ctx context.Context, path string) (*Result, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".exe") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArtifact, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("installer missing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	debug.Debugf("install: launching %s %s", path, strings.Join(s.args, " "))
	start := time.Now()
	cmd := exec.CommandContext(ctx, path, s.args...)
	err := cmd.Run()
	res := &Result{Duration: time.Since(start)}

	if err == nil {
		debug.Debugf("install: %s succeeded in %s", path, res.Duration)
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("installer did not finish: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		debug.Warnf("install: %s exited with code %d", path, res.ExitCode)
		return res, &InstallerFailedError{Code: res.ExitCode}
	}
	return nil, fmt.Errorf("launch installer: %w", err)
}
