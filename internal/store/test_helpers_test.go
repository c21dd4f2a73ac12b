package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

var errDiskFull = errors.New("no space left on device")

// createTestStore creates a store over an in-memory snapshot.
func createTestStore(t *testing.T) (*Store, *MemorySnapshot) {
	t.Helper()
	snap := NewMemorySnapshot()
	s, err := Open(context.Background(), Options{Durability: snap})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, snap
}

// createFileStore creates a store backed by a file in a temp directory.
func createFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "safety.db")
	s, err := Open(context.Background(), Options{Path: path})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

// flakyDurability wraps a MemorySnapshot and fails the next N persists.
type flakyDurability struct {
	*MemorySnapshot

	mu       sync.Mutex
	failNext int
	persists int
}

func newFlakyDurability() *flakyDurability {
	return &flakyDurability{MemorySnapshot: NewMemorySnapshot()}
}

func (f *flakyDurability) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func (f *flakyDurability) Persist(ctx context.Context, image []byte) error {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return errDiskFull
	}
	f.persists++
	f.mu.Unlock()
	return f.MemorySnapshot.Persist(ctx, image)
}

func (f *flakyDurability) Persists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persists
}

// insertUser inserts a user with the given email and role and returns its id.
func insertUser(t *testing.T, s *Store, email, role string) int64 {
	t.Helper()
	res, err := s.Execute(context.Background(), `
		INSERT INTO users (email, password_hash, first_name, last_name, role)
		VALUES (?, 'hash', 'Test', 'User', ?)
	`, email, role)
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return res.LastInsertID
}

// countRows returns SELECT COUNT(*) for table.
func countRows(t *testing.T, s *Store, table string) int64 {
	t.Helper()
	row, ok, err := s.QueryOne(context.Background(), fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table))
	if err != nil || !ok {
		t.Fatalf("count %s: ok=%v err=%v", table, ok, err)
	}
	n, _ := row.Int64("n")
	return n
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
