// Package session is the entry point route handlers depend on.
//
// A Session wraps one store: Initialize opens it once, the data operations
// delegate to it, and Close flushes and releases it. Sessions are
// constructed explicitly and passed to their consumers; there is no
// process-wide handle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/safetydb/internal/store"
)

// ErrNotInitialized is returned by data operations before Initialize has
// succeeded.
var ErrNotInitialized = errors.New("session is not initialized")

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithOpener replaces store.Open. Used by tests to observe or fail
// initialization.
func WithOpener(open func(context.Context, store.Options) (*store.Store, error)) Option {
	return func(s *Session) {
		s.open = open
	}
}

// Session is the four-operation facade over a store.
//
// Thread-safety: every method is safe for concurrent use. Concurrent
// Initialize calls open the store once; the losers wait for the winner.
type Session struct {
	opts store.Options
	open func(context.Context, store.Options) (*store.Store, error)

	initMu sync.Mutex // serializes Initialize

	mu    sync.RWMutex // guards state and store
	state State
	store *store.Store
}

// New returns an uninitialized Session for the given store options.
func New(opts store.Options, options ...Option) *Session {
	s := &Session{
		opts: opts,
		open: store.Open,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Initialize opens the store, applies the schema and persists the
// post-schema image. Calls after the first success are no-ops. A failed
// call leaves the session uninitialized so it can be retried.
func (s *Session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateClosed:
		s.mu.Unlock()
		return store.ErrClosed
	}
	s.state = StateInitializing
	s.mu.Unlock()

	st, err := s.open(ctx, s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUninitialized
		slog.Error("session initialization failed", "error", err)
		return err
	}
	s.store = st
	s.state = StateReady
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Store returns the underlying store, or ErrNotInitialized.
func (s *Session) Store() (*store.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateReady:
		return s.store, nil
	case StateClosed:
		return nil, store.ErrClosed
	default:
		return nil, ErrNotInitialized
	}
}

// QueryAll runs a read statement and returns every matching row, or an
// empty slice.
func (s *Session) QueryAll(ctx context.Context, query string, args ...any) ([]store.Row, error) {
	st, err := s.Store()
	if err != nil {
		return nil, err
	}
	return st.QueryAll(ctx, query, args...)
}

// QueryOne runs a read statement and returns its first row; ok is false
// when nothing matched.
func (s *Session) QueryOne(ctx context.Context, query string, args ...any) (store.Row, bool, error) {
	st, err := s.Store()
	if err != nil {
		return nil, false, err
	}
	return st.QueryOne(ctx, query, args...)
}

// Execute runs a mutating statement. It returns only after the resulting
// image is durable.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (store.Result, error) {
	st, err := s.Store()
	if err != nil {
		return store.Result{}, err
	}
	return st.Execute(ctx, query, args...)
}

// Close flushes any pending image and releases the store. Closing an
// uninitialized session only marks it closed. Subsequent calls return nil.
func (s *Session) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	prev := s.state
	s.state = StateClosed
	if prev != StateReady {
		return nil
	}

	return s.store.Close()
}
