// Package engine provides the Lisp evaluation engine for csgtree.
// It wraps zygomys in a sandboxed environment and produces a Design of
// CSG trees from user source code.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/csgtree/pkg/csg"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in user code or a tree that
// cannot be built.
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

// Engine wraps the zygomys interpreter for csgtree evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	// DefaultOp is used by csg-tree forms that omit :op.
	DefaultOp csg.Operator

	log        *slog.Logger
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine that logs to logger, or to the default
// logger when logger is nil.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{DefaultOp: csg.Union, log: logger}
}

// Evaluate takes Lisp source code and produces a new Design.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns design + nil errors + nil error
//   - On parse/eval failure: returns nil design + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Design, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		d, evalErrs, err := e.evaluate(source)
		ch <- evalResult{design: d, errors: evalErrs, err: err}
	}()

	d, evalErrs, err := waitWithTimeout(ch, gen, &e.mu, &e.generation)
	switch {
	case err != nil:
		e.log.Error("evaluation failed", "generation", gen, "err", err)
	case len(evalErrs) > 0:
		e.log.Warn("evaluation reported errors", "generation", gen, "errors", len(evalErrs), "first", evalErrs[0].Error())
	default:
		e.log.Info("evaluated design", "design", d.ID, "generation", gen, "trees", d.TreeCount())
		for _, t := range d.Trees {
			e.log.Debug("tree built", "design", d.ID, "tree", t.Name,
				"primitives", t.Primitives, "height", t.Height, "pruned", t.Pruned)
		}
	}
	return d, evalErrs, err
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Design, []EvalError, error) {
	d := NewDesign()

	// Empty source is a valid program that produces an empty design.
	if strings.TrimSpace(source) == "" {
		return d, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, d, e.DefaultOp)

	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	return d, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
