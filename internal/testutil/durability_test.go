package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/safetydb/internal/session"
	"github.com/roach88/safetydb/internal/store"
)

func TestFlakyDurability_FailsThenRecovers(t *testing.T) {
	f := NewFlakyDurability()
	ctx := context.Background()

	f.FailNext(2)
	assert.ErrorIs(t, f.Persist(ctx, []byte("a")), ErrInjected)
	assert.ErrorIs(t, f.Persist(ctx, []byte("b")), ErrInjected)
	require.NoError(t, f.Persist(ctx, []byte("c")))

	image, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), image)
	assert.Equal(t, 1, f.Persists())
}

func TestFlakyDurability_RollsBackSessionWrite(t *testing.T) {
	f := NewFlakyDurability()
	s := NewSessionWith(t, store.Options{Durability: f})

	f.FailNext(1)
	_, err := s.Execute(context.Background(),
		"INSERT INTO training_modules (title, category) VALUES ('Respirators', 'PPE')")
	require.Error(t, err)
	assert.True(t, store.IsPersistenceError(err))
	assert.Equal(t, int64(0), Count(t, s, "training_modules"))
}

func TestNewSession_Ready(t *testing.T) {
	s := NewSession(t)
	assert.Equal(t, session.StateReady, s.State())

	res := MustExec(t, s, "INSERT INTO training_modules (title, category) VALUES (?, ?)", "Hearing", "PPE")
	assert.Equal(t, int64(1), res.LastInsertID)
	assert.Equal(t, int64(1), Count(t, s, "training_modules"))
}
