package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/adze/pkg/logging"
)

// DefaultTimeout bounds a solver run when the executor sets none.
const DefaultTimeout = 10 * time.Second

// ScriptPlaceholder in Executor.Args is replaced with the script path.
const ScriptPlaceholder = "{script}"

// ErrNoCommand is returned when an executor has no command configured.
var ErrNoCommand = errors.New("platform: no solver command configured")

// RunResult is the outcome of one solver run. OK is false when the process
// could not start, exited non-zero or timed out; Err then says why.
type RunResult struct {
	OK       bool
	TimedOut bool
	Output   string
	Err      error
	Duration time.Duration
}

// Executor runs a solver binary on a script under a timeout.
type Executor struct {
	Command string
	Args    []string // ScriptPlaceholder marks the script; appended if absent
	Timeout time.Duration
	Dir     string // working directory; defaults to the script's directory
}

// Run starts the solver and waits for it. The process is killed when the
// timeout or ctx expires.
func (e Executor) Run(ctx context.Context, scriptPath string) RunResult {
	log := logging.Logger()
	if e.Command == "" {
		return RunResult{Err: ErrNoCommand}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Command, e.args(scriptPath)...)
	cmd.Dir = e.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(scriptPath)
	}
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := RunResult{Output: out.String(), Duration: time.Since(start)}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Err = fmt.Errorf("%s timed out after %s: %w", e.Command, timeout, ctx.Err())
	case ctx.Err() != nil:
		res.Err = fmt.Errorf("%s: %w", e.Command, ctx.Err())
	case err != nil:
		res.Err = fmt.Errorf("%s: %w", e.Command, err)
	default:
		res.OK = true
	}

	if res.OK {
		log.Info("solver finished", "command", e.Command, "script", scriptPath, "duration", res.Duration)
	} else {
		log.Warn("solver failed", "command", e.Command, "script", scriptPath, "timed_out", res.TimedOut, "err", res.Err)
	}
	return res
}

func (e Executor) args(scriptPath string) []string {
	out := make([]string, 0, len(e.Args)+1)
	found := false
	for _, a := range e.Args {
		if strings.Contains(a, ScriptPlaceholder) {
			found = true
			a = strings.ReplaceAll(a, ScriptPlaceholder, scriptPath)
		}
		out = append(out, a)
	}
	if !found {
		out = append(out, scriptPath)
	}
	return out
}
