// Package pipeline folds a feed AST through an ordered chain of
// enhancement functions.
//
// The fold is sequential: step N sees everything steps 0..N-1 did. Each
// step runs against its own copy of the feed, and its result is kept only
// if the step returned without error, its deferred content resolved, and
// the feed still validates. Otherwise the step is a no-op and the failure
// is recorded on its FuncInterface.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/enhance"
)

// MissingFunctionError is appended to a FuncInterface whose name is not
// registered.
const MissingFunctionError = "Could not locate this function, so it has been omitted from the results"

// Runner executes compositions against a registry.
//
// Thread-safety: Runner is safe for concurrent use if its registry is.
type Runner struct {
	registry *enhance.Registry
	logger   *slog.Logger

	// clone copies the feed before each step.
	clone func(*ast.Feed) *ast.Feed
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(registry *enhance.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		registry: registry,
		logger:   logger.With("component", "pipeline"),
		clone:    ast.Clone,
	}
}

type step struct {
	index int
	fname string
	fn    enhance.Func
}

// SetupASTPipeline resolves funcs against the registry and folds feed
// through the resolved steps in order.
//
// Unknown names and failing steps are annotated on funcs in place; they
// never fail the call. The returned error is always a *PipelineError and
// only occurs when the fold itself cannot proceed.
func (r *Runner) SetupASTPipeline(ctx context.Context, feed *ast.Feed, funcs []FuncInterface) (out *ast.Feed, err error) {
	if feed == nil {
		return nil, &PipelineError{
			Code:    ErrCodeNilFeed,
			Message: "input feed is nil",
			Stack:   string(debug.Stack()),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &PipelineError{
				Code:    ErrCodeFoldPanic,
				Message: "pipeline fold panicked",
				Cause:   fmt.Errorf("%v", rec),
				Stack:   string(debug.Stack()),
			}
			r.logger.Error("pipeline fold panicked", "error", rec)
		}
	}()

	steps := r.resolve(funcs)

	cur := feed
	for _, s := range steps {
		if cerr := ctx.Err(); cerr != nil {
			return nil, &PipelineError{
				Code:    ErrCodeCancelled,
				Message: fmt.Sprintf("cancelled before step %d (%s)", s.index, s.fname),
				Cause:   cerr,
				Stack:   string(debug.Stack()),
			}
		}

		next, serr := r.runStep(ctx, s, cur, r.clone(cur))
		if serr != nil {
			stepErr := &StepError{Index: s.index, FName: s.fname, Cause: serr}
			r.logger.Warn("pipeline step failed",
				"index", s.index,
				"fname", s.fname,
				"error", serr)
			funcs[s.index].Errors = append(funcs[s.index].Errors, stepErr.Error())
			continue
		}
		cur = next
	}

	return cur, nil
}

// resolve looks up every FuncInterface. A missing name or a panicking
// Apply is annotated and the step omitted.
func (r *Runner) resolve(funcs []FuncInterface) []step {
	steps := make([]step, 0, len(funcs))
	for i := range funcs {
		fi := &funcs[i]
		e, err := r.registry.Lookup(fi.FName)
		if err != nil {
			fi.Errors = append(fi.Errors, MissingFunctionError)
			r.logger.Warn("pipeline function not found", "index", i, "fname", fi.FName)
			continue
		}

		fn, err := apply(e, fi.Params)
		if err != nil {
			fi.Errors = append(fi.Errors, (&StepError{Index: i, FName: fi.FName, Cause: err}).Error())
			r.logger.Warn("pipeline step setup failed", "index", i, "fname", fi.FName, "error", err)
			continue
		}
		steps = append(steps, step{index: i, fname: fi.FName, fn: fn})
	}
	return steps
}

func apply(e enhance.Enhancement, params enhance.Params) (fn enhance.Func, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	if params == nil {
		params = enhance.Params{}
	}
	fn = e.Apply(params)
	if fn == nil {
		return nil, fmt.Errorf("enhancement returned no function")
	}
	return fn, nil
}

// runStep executes one step on in, a private copy of prev. Any failure,
// including a panic, a nil result, a failed deferred computation or an
// invalid feed, is returned as an error.
func (r *Runner) runStep(ctx context.Context, s step, prev, in *ast.Feed) (out *ast.Feed, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()

	out, err = s.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("step returned a nil feed")
	}
	if err := ast.Resolve(ctx, out); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if errs := newViolations(prev, out); len(errs) > 0 {
		return nil, fmt.Errorf("invalid feed: %w", errs)
	}
	return out, nil
}

// newViolations returns the validation errors of after that before did not
// already have. A step may leave an imperfect input as it found it, but it
// must not make it worse.
func newViolations(before, after *ast.Feed) ast.ValidationErrors {
	baseline := map[string]bool{}
	for _, e := range ast.Validate(before) {
		baseline[e.Error()] = true
	}

	var errs ast.ValidationErrors
	for _, e := range ast.Validate(after) {
		if !baseline[e.Error()] {
			errs = append(errs, e)
		}
	}
	return errs
}
