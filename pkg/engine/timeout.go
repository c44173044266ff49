package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// errAbandoned unwinds an evaluation whose caller has stopped waiting.
var errAbandoned = errors.New("evaluation abandoned")

// evalResult passes evaluation results through channels.
type evalResult struct {
	model  *Model
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds timeout. It uses a generation counter to
// discard stale results from previous evaluations.
//
// On timeout, abort is called so the evaluation stops at its next function
// call; the generation check discards anything it still produces.
func waitWithTimeout(
	ch <-chan evalResult,
	timeout time.Duration,
	abort func(),
	gen uint64,
	mu *sync.Mutex,
	currentGen *uint64,
) (*Model, []EvalError, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			return nil, nil, fmt.Errorf("evaluation superseded by newer request")
		}

		return res.model, res.errors, res.err

	case <-timer.C:
		if abort != nil {
			abort()
		}
		return nil, nil, fmt.Errorf("evaluation timed out after %s", timeout)
	}
}

// installAbort makes every function call in env panic with errAbandoned once
// stop is set. zygomys has no way to interrupt Run; a loop that calls no
// function keeps spinning, but it holds no lock other evaluations need.
func installAbort(env *zygo.Zlisp, stop *atomic.Bool) {
	env.AddPreHook(func(*zygo.Zlisp, string, []zygo.Sexp) {
		if stop.Load() {
			panic(errAbandoned)
		}
	})
}
