package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/safetydb/internal/store"
)

func countingOpener(calls *atomic.Int32) Option {
	return WithOpener(func(ctx context.Context, opts store.Options) (*store.Store, error) {
		calls.Add(1)
		return store.Open(ctx, opts)
	})
}

func TestInitialize_Memoized(t *testing.T) {
	var calls atomic.Int32
	s := New(store.Options{Durability: store.NewMemorySnapshot()}, countingOpener(&calls))
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateReady, s.State())
}

func TestInitialize_ConcurrentCallersOpenOnce(t *testing.T) {
	var calls atomic.Int32
	s := New(store.Options{Durability: store.NewMemorySnapshot()}, countingOpener(&calls))
	t.Cleanup(func() { s.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestInitialize_FailureCanBeRetried(t *testing.T) {
	boom := errors.New("disk unavailable")
	attempts := 0
	s := New(store.Options{Durability: store.NewMemorySnapshot()},
		WithOpener(func(ctx context.Context, opts store.Options) (*store.Store, error) {
			attempts++
			if attempts == 1 {
				return nil, boom
			}
			return store.Open(ctx, opts)
		}))
	t.Cleanup(func() { s.Close() })

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateUninitialized, s.State())

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, StateReady, s.State())
}

func TestInitialize_CorruptImageFailsFast(t *testing.T) {
	snap := store.NewMemorySnapshotFrom([]byte("definitely not a database image"))
	s := New(store.Options{Durability: snap})

	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsLoadCorruption(err))
	assert.Equal(t, StateUninitialized, s.State())
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s := New(store.Options{})
	ctx := context.Background()

	_, err := s.QueryAll(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, _, err = s.QueryOne(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = s.Execute(ctx, "DELETE FROM users")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDelegatesToStore(t *testing.T) {
	s := New(store.Options{Durability: store.NewMemorySnapshot()})
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	res, err := s.Execute(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role)
		VALUES (?, 'hash', 'Alice', 'Smith', 'employee')
	`, "alice@example.com")
	require.NoError(t, err)

	row, ok, err := s.QueryOne(ctx, "SELECT email FROM users WHERE id = ?", res.LastInsertID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", row["email"])

	rows, err := s.QueryAll(ctx, "SELECT * FROM users")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClose_FlushesAndRejectsFurtherUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "safety.db")
	ctx := context.Background()

	s := New(store.Options{Path: path})
	require.NoError(t, s.Initialize(ctx))
	_, err := s.Execute(ctx, "INSERT INTO training_modules (title, category) VALUES ('Ladder Safety', 'Fall Protection')")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err = s.QueryAll(ctx, "SELECT 1")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Initialize(ctx), store.ErrClosed)

	// A new session over the same file sees the write.
	s2 := New(store.Options{Path: path})
	t.Cleanup(func() { s2.Close() })
	require.NoError(t, s2.Initialize(ctx))
	row, ok, err := s2.QueryOne(ctx, "SELECT title FROM training_modules")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ladder Safety", row["title"])
}

// countingSnapshot counts persisted images.
type countingSnapshot struct {
	*store.MemorySnapshot
	persists atomic.Int32
}

func (c *countingSnapshot) Persist(ctx context.Context, image []byte) error {
	c.persists.Add(1)
	return c.MemorySnapshot.Persist(ctx, image)
}

func TestClose_ReadOnlySessionDoesNotRewriteImage(t *testing.T) {
	ctx := context.Background()
	snap := &countingSnapshot{MemorySnapshot: store.NewMemorySnapshot()}

	s := New(store.Options{Durability: snap})
	require.NoError(t, s.Initialize(ctx))
	_, err := s.Execute(ctx, "INSERT INTO training_modules (title, category) VALUES ('Ladder Safety', 'Fall Protection')")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reader := New(store.Options{Durability: snap})
	require.NoError(t, reader.Initialize(ctx))
	written := snap.persists.Load()
	rows, err := reader.QueryAll(ctx, "SELECT title FROM training_modules")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.NoError(t, reader.Close())

	assert.Equal(t, written, snap.persists.Load())
}

func TestClose_Uninitialized(t *testing.T) {
	s := New(store.Options{})
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
