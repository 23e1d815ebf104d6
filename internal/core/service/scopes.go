package service

import (
	"context"
	"sort"
	"sync"
)

// scopeEntry is one open scope. Writers and readers hold gate shared for the
// whole of an operation; Close and full refolds hold it exclusively.
type scopeEntry[T any] struct {
	ready  chan struct{}
	err    error
	gate   sync.RWMutex
	closed bool
	view   T
}

// scopeRegistry opens scopes on demand. Loading runs outside the registry
// lock so a slow scope never blocks the others.
type scopeRegistry[T any] struct {
	mu      sync.Mutex
	entries map[string]*scopeEntry[T]
	load    func(ctx context.Context, scope string) (T, error)
}

func newScopeRegistry[T any](load func(ctx context.Context, scope string) (T, error)) *scopeRegistry[T] {
	return &scopeRegistry[T]{
		entries: make(map[string]*scopeEntry[T]),
		load:    load,
	}
}

// acquire returns the open entry for scope with its gate read-locked.
func (r *scopeRegistry[T]) acquire(ctx context.Context, scope string) (*scopeEntry[T], error) {
	for {
		e := r.entry(ctx, scope)

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}

		e.gate.RLock()
		if e.closed {
			e.gate.RUnlock()
			continue
		}
		return e, nil
	}
}

func (r *scopeRegistry[T]) entry(ctx context.Context, scope string) *scopeEntry[T] {
	r.mu.Lock()
	e, ok := r.entries[scope]
	if ok {
		r.mu.Unlock()
		return e
	}
	e = &scopeEntry[T]{ready: make(chan struct{})}
	r.entries[scope] = e
	r.mu.Unlock()

	e.view, e.err = r.load(ctx, scope)
	if e.err != nil {
		r.forget(scope, e)
	}
	close(e.ready)
	return e
}

func (r *scopeRegistry[T]) forget(scope string, e *scopeEntry[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[scope] == e {
		delete(r.entries, scope)
	}
}

// exclusive runs fn with the scope's gate held exclusively.
func (r *scopeRegistry[T]) exclusive(ctx context.Context, scope string, fn func(e *scopeEntry[T]) error) error {
	for {
		e, err := r.acquire(ctx, scope)
		if err != nil {
			return err
		}
		e.gate.RUnlock()

		e.gate.Lock()
		if e.closed {
			e.gate.Unlock()
			continue
		}
		err = fn(e)
		e.gate.Unlock()
		return err
	}
}

// close waits for in-flight operations on scope, runs fn on its view and
// drops it. It reports whether the scope was open.
func (r *scopeRegistry[T]) close(scope string, fn func(view T)) bool {
	r.mu.Lock()
	e, ok := r.entries[scope]
	r.mu.Unlock()
	if !ok {
		return false
	}

	<-e.ready
	if e.err != nil {
		return false
	}

	e.gate.Lock()
	defer e.gate.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	r.forget(scope, e)

	if fn != nil {
		fn(e.view)
	}
	return true
}

// exclusiveIfOpen runs fn like exclusive but never loads scope. It reports
// false when the scope is not open.
func (r *scopeRegistry[T]) exclusiveIfOpen(ctx context.Context, scope string, fn func(e *scopeEntry[T]) error) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[scope]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if e.err != nil {
		return false, nil
	}

	e.gate.Lock()
	defer e.gate.Unlock()
	if e.closed {
		return false, nil
	}
	return true, fn(e)
}

func (r *scopeRegistry[T]) open() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	scopes := make([]string, 0, len(r.entries))
	for scope := range r.entries {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}
