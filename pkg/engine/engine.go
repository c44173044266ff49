// Package engine provides the Lisp evaluation engine for adze models.
// It wraps zygomys in a sandboxed environment and produces a Model from
// user source code.
package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// sandboxMu serializes sandbox construction across engines; zygomys
// registers its builtin types in package-level state.
var sandboxMu sync.Mutex

// Engine wraps the zygomys interpreter for model evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	// BaseDir resolves relative paths given to import-geometry. Empty means
	// the working directory.
	BaseDir string
	// Epsilon is the merge tolerance of new models; (problem :epsilon ...)
	// overrides it. Zero keeps geom.DefaultEpsilon.
	Epsilon float64
	// Timeout bounds one evaluation. Zero means EvalTimeout.
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Clone returns an engine with the same settings and its own generation
// counter. Evaluations on one engine supersede each other, so concurrent
// callers each need a clone.
func (e *Engine) Clone() *Engine {
	return &Engine{BaseDir: e.BaseDir, Epsilon: e.Epsilon, Timeout: e.Timeout}
}

// Evaluate takes Lisp source code and produces a new Model.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns model + nil errors + nil error
//   - On parse/eval failure: returns nil model + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Model, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)
	stop := new(atomic.Bool)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		m, evalErrs, err := e.evaluate(source, stop)
		ch <- evalResult{model: m, errors: evalErrs, err: err}
	}()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return waitWithTimeout(ch, timeout, func() { stop.Store(true) }, gen, &e.mu, &e.generation)
}

// EvaluateWithParams binds each parameter with def before evaluating
// source, so models can be written against named dimensions and swept.
// Bindings are emitted in name order on the first source line; reported
// line numbers are unaffected.
func (e *Engine) EvaluateWithParams(source string, params map[string]float64) (*Model, []EvalError, error) {
	return e.Evaluate(paramPrelude(params) + source)
}

func paramPrelude(params map[string]float64) string {
	names := lo.Keys(params)
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		v := strconv.FormatFloat(params[n], 'g', -1, 64)
		if !strings.ContainsAny(v, ".eEn") {
			// keep the literal a float so arithmetic stays in floats
			v += ".0"
		}
		fmt.Fprintf(&b, "(def %s %s) ", n, v)
	}
	return b.String()
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
// Setting stop aborts it at the next function call.
func (e *Engine) evaluate(source string, stop *atomic.Bool) (*Model, []EvalError, error) {
	m := NewModel()
	if e.Epsilon > 0 {
		m.Geometry.Epsilon = e.Epsilon
	}

	// Empty source is a valid program that produces an empty model.
	if strings.TrimSpace(source) == "" {
		return m, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or
	// syscalls; import-geometry reads files on the Go side.
	sandboxMu.Lock()
	env := zygo.NewZlispSandbox()
	registerBuiltins(env, m, e.BaseDir)
	sandboxMu.Unlock()
	defer env.Stop()

	installAbort(env, stop)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}

	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	return m, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		loc := p.FindStringSubmatchIndex(msg)
		if loc == nil {
			continue
		}
		line, _ := strconv.Atoi(msg[loc[2]:loc[3]])
		// Keep text around the location marker; builtin errors may precede it.
		parts := []string{msg[:loc[0]], msg[loc[4]:loc[5]], msg[loc[1]:]}
		detail := strings.Join(lo.Compact(lo.Map(parts, func(s string, _ int) string {
			return strings.TrimSpace(s)
		})), " ")
		return []EvalError{{Line: line, Message: detail}}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
