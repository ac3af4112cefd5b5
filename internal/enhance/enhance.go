// Package enhance defines the enhancement function contract and the
// registry the pipeline resolves step names against.
//
// An enhancement is a named, parameterized transform of the feed AST:
//
//	Apply(params) -> func(ctx, feed) (feed, error)
//
// Enhancements may mutate the feed they are given; the pipeline hands each
// step its own copy and discards it on failure.
package enhance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/roach88/citytrain/internal/ast"
)

// Params are the step parameters parsed from a composition.
// Values are int, bool or string for composition strings, and whatever the
// YAML or JSON decoder produced for composition files.
type Params map[string]any

// Func is one configured pipeline step.
type Func func(ctx context.Context, feed *ast.Feed) (*ast.Feed, error)

// Enhancement is the contract every registered transform satisfies.
type Enhancement interface {
	Name() string
	Apply(params Params) Func
}

// Registry keeps a mapping from enhancement names to implementations.
//
// Thread-safety: Registry is safe for concurrent use. It is normally filled
// once at startup and read afterwards.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Enhancement
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Enhancement{}}
}

// Register adds or replaces an enhancement.
func (r *Registry) Register(e Enhancement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs == nil {
		r.funcs = map[string]Enhancement{}
	}
	r.funcs[e.Name()] = e
}

// Lookup returns an enhancement by name or an error if it is absent.
func (r *Registry) Lookup(name string) (Enhancement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.funcs[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("enhancement %s is not registered", name)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FuncOf adapts a plain function into an Enhancement.
type FuncOf struct {
	FName string
	Fn    func(params Params) Func
}

// Name implements Enhancement.
func (f FuncOf) Name() string { return f.FName }

// Apply implements Enhancement.
func (f FuncOf) Apply(params Params) Func { return f.Fn(params) }

// Int reads an integer parameter, falling back to def when absent.
// Floats are accepted only when they hold a whole number.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("param %s: want integer, got %T (%v)", name, v, v)
}

// String reads a string parameter, falling back to def when absent.
func (p Params) String(name, def string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s: want string, got %T (%v)", name, v, v)
	}
	return s, nil
}

// Bool reads a boolean parameter, falling back to def when absent.
func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %s: want bool, got %T (%v)", name, v, v)
	}
	return b, nil
}

// Fail returns a Func that always fails with err. Enhancements use it to
// report bad parameters from Apply, which cannot return an error itself.
func Fail(err error) Func {
	return func(context.Context, *ast.Feed) (*ast.Feed, error) {
		return nil, err
	}
}
