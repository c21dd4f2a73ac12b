package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Durability is the strategy that keeps the serialized database image.
//
// Persist must not return until the image is durable: every acknowledged
// write is visible to subsequent reads AND flushed to the backing medium
// before Execute returns.
type Durability interface {
	// Load returns the stored image, or nil when nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)

	// Persist replaces the stored image with image.
	Persist(ctx context.Context, image []byte) error

	// Quarantine moves an unreadable image aside and returns where it went.
	Quarantine(ctx context.Context) (string, error)

	// Location describes the backing medium for logs and errors.
	Location() string
}

// FileSnapshot stores the image in a single file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target,
// so a crash mid-persist leaves either the old or the new image.
type FileSnapshot struct {
	path string
	now  func() time.Time
}

// NewFileSnapshot returns a FileSnapshot backed by path. The containing
// directory is created on first persist.
func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path, now: time.Now}
}

// Location returns the file path.
func (f *FileSnapshot) Location() string { return f.path }

// Load reads the image file. A missing file yields (nil, nil).
func (f *FileSnapshot) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Persist atomically replaces the image file.
func (f *FileSnapshot) Persist(ctx context.Context, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	committed = true

	// Best effort: make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// Quarantine renames the image file to <path>.corrupt-<unix seconds>.
func (f *FileSnapshot) Quarantine(ctx context.Context) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%d", f.path, f.now().Unix())
	if err := os.Rename(f.path, dest); err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return dest, nil
}

// MemorySnapshot keeps the image in process memory. Opening a second store
// over the same MemorySnapshot simulates a restart.
type MemorySnapshot struct {
	mu          sync.Mutex
	image       []byte
	quarantined [][]byte
}

// NewMemorySnapshot returns an empty MemorySnapshot.
func NewMemorySnapshot() *MemorySnapshot {
	return &MemorySnapshot{}
}

// NewMemorySnapshotFrom returns a MemorySnapshot preloaded with image.
func NewMemorySnapshotFrom(image []byte) *MemorySnapshot {
	return &MemorySnapshot{image: append([]byte(nil), image...)}
}

// Location returns "memory".
func (m *MemorySnapshot) Location() string { return "memory" }

// Load returns a copy of the held image.
func (m *MemorySnapshot) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.image == nil {
		return nil, nil
	}
	return append([]byte(nil), m.image...), nil
}

// Persist replaces the held image with a copy of image.
func (m *MemorySnapshot) Persist(ctx context.Context, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.image = append([]byte(nil), image...)
	return nil
}

// Quarantine drops the held image, keeping it for inspection.
func (m *MemorySnapshot) Quarantine(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quarantined = append(m.quarantined, m.image)
	m.image = nil
	return fmt.Sprintf("memory#%d", len(m.quarantined)), nil
}

// Quarantined returns the number of images moved aside.
func (m *MemorySnapshot) Quarantined() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.quarantined)
}

// imageDigest returns a short sha256 prefix used to identify images in logs.
func imageDigest(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:6])
}
