package ast

import (
	"context"
	"encoding/json"
	"sync"
)

// Computable is a slot that holds either a resolved value or a pending
// computation. A pending computation runs at most once; every later read
// returns the memoized value and error without re-triggering side effects.
//
// Thread-safety: Resolve is safe for concurrent use.
type Computable[T any] struct {
	once sync.Once
	fn   func(context.Context) (T, error)

	mu       sync.RWMutex
	resolved bool
	val      T
	err      error
}

// Resolved wraps an already-known value.
func Resolved[T any](v T) *Computable[T] {
	c := &Computable[T]{resolved: true, val: v}
	c.once.Do(func() {})
	return c
}

// Pending wraps a deferred computation. fn runs on the first Resolve.
func Pending[T any](fn func(context.Context) (T, error)) *Computable[T] {
	return &Computable[T]{fn: fn}
}

// Resolve returns the slot's value, running the pending computation on the
// first call. The context of that first call is the one fn observes.
func (c *Computable[T]) Resolve(ctx context.Context) (T, error) {
	if c == nil {
		var zero T
		return zero, nil
	}

	c.once.Do(func() {
		var (
			v   T
			err error
		)
		if c.fn != nil {
			v, err = c.fn(ctx)
		}
		c.mu.Lock()
		c.val, c.err, c.resolved = v, err, true
		c.fn = nil
		c.mu.Unlock()
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val, c.err
}

// IsResolved reports whether the value is available without computing.
func (c *Computable[T]) IsResolved() bool {
	if c == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolved
}

// MarshalJSON resolves the slot and marshals the value. Callers that need
// a context should call Resolve (or ast.Resolve on the feed) first.
func (c *Computable[T]) MarshalJSON() ([]byte, error) {
	v, err := c.Resolve(context.Background())
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes into a resolved slot.
func (c *Computable[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.once.Do(func() {})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val, c.err, c.resolved = v, nil, true
	c.fn = nil
	return nil
}
