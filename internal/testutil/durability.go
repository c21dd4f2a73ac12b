package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/safetydb/internal/store"
)

// ErrInjected is returned by FlakyDurability for injected failures.
var ErrInjected = errors.New("injected persist failure")

// FlakyDurability is an in-memory durability strategy whose persists can
// be made to fail on demand.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FlakyDurability struct {
	*store.MemorySnapshot

	mu       sync.Mutex
	failNext int
	persists int
}

// NewFlakyDurability returns a FlakyDurability that succeeds until told
// otherwise.
func NewFlakyDurability() *FlakyDurability {
	return &FlakyDurability{MemorySnapshot: store.NewMemorySnapshot()}
}

// FailNext makes the next n persists return ErrInjected.
func (f *FlakyDurability) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Persist fails while injected failures remain, then delegates.
func (f *FlakyDurability) Persist(ctx context.Context, image []byte) error {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return ErrInjected
	}
	f.persists++
	f.mu.Unlock()
	return f.MemorySnapshot.Persist(ctx, image)
}

// Persists returns the number of successful persists.
func (f *FlakyDurability) Persists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persists
}
