// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/roach88/safetydb/internal/session"
	"github.com/roach88/safetydb/internal/store"
)

// NewSession returns an initialized session over a fresh in-memory image.
// The session is closed when the test ends.
func NewSession(t testing.TB) *session.Session {
	t.Helper()
	return NewSessionWith(t, store.Options{Durability: store.NewMemorySnapshot()})
}

// NewSessionWith returns an initialized session over opts.
func NewSessionWith(t testing.TB, opts store.Options) *session.Session {
	t.Helper()
	s := session.New(opts)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize session: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close session: %v", err)
		}
	})
	return s
}

// MustExec runs a mutating statement and fails the test on error.
func MustExec(t testing.TB, s *session.Session, query string, args ...any) store.Result {
	t.Helper()
	res, err := s.Execute(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return res
}

// Count returns the number of rows in table.
func Count(t testing.TB, s *session.Session, table string) int64 {
	t.Helper()
	row, ok, err := s.QueryOne(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	if err != nil || !ok {
		t.Fatalf("count %s: ok=%v err=%v", table, ok, err)
	}
	n, _ := row.Int64("n")
	return n
}
