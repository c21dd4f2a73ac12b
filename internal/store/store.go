package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// Options configures Open.
type Options struct {
	// Path is the backing file. Ignored when Durability is set. When both
	// are empty the store keeps its image in memory only.
	Path string

	// Durability overrides the strategy derived from Path.
	Durability Durability

	// RecoverCorrupt moves an unreadable image aside and starts empty
	// instead of failing Open.
	RecoverCorrupt bool
}

// Store is the engine handle plus its durability strategy.
//
// Reads share the lock; Execute, Flush and Close are exclusive.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	durable Durability

	// image is the last image known to be durable; used for rollback.
	image []byte

	// dirty is set when the engine holds state that was neither persisted
	// nor rolled back.
	dirty  bool
	closed bool
}

// Open loads the stored image (or starts empty), applies the schema and
// persists the post-schema image. It is safe to call repeatedly against the
// same backing file.
func Open(ctx context.Context, opts Options) (*Store, error) {
	durable := opts.Durability
	if durable == nil {
		if opts.Path != "" {
			durable = NewFileSnapshot(opts.Path)
		} else {
			durable = NewMemorySnapshot()
		}
	}

	db, err := loadOrCreate(ctx, durable, opts.RecoverCorrupt)
	if err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, durable: durable}
	if err := s.persistLocked(ctx); err != nil {
		db.Close()
		return nil, err
	}

	version, err := schemaVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, &SchemaError{Err: err}
	}
	if err := setQueryOnly(ctx, db, true); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("store ready",
		"location", durable.Location(),
		"schema_version", version,
		"bytes", len(s.image),
	)
	return s, nil
}

// loadOrCreate returns an engine holding the stored image, or an empty
// engine when nothing is stored.
func loadOrCreate(ctx context.Context, durable Durability, recoverCorrupt bool) (*sql.DB, error) {
	image, err := durable.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", durable.Location(), err)
	}

	db, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}

	if len(image) == 0 {
		slog.Info("created new database", "location", durable.Location())
		return db, nil
	}

	loadErr := restoreImage(ctx, db, image)
	if loadErr == nil {
		slog.Info("loaded existing database",
			"location", durable.Location(),
			"bytes", len(image),
			"sha256", imageDigest(image),
		)
		return db, nil
	}

	db.Close()
	corruption := &LoadCorruptionError{Location: durable.Location(), Err: loadErr}
	if !recoverCorrupt {
		return nil, corruption
	}

	dest, err := durable.Quarantine(ctx)
	if err != nil {
		return nil, errors.Join(corruption, err)
	}
	corruption.QuarantinedTo = dest
	slog.Warn("unreadable database image quarantined, starting empty",
		"location", durable.Location(),
		"quarantined_to", dest,
		"error", loadErr,
	)

	return openEngine(ctx)
}

// openEngine opens an empty in-memory database behind a single connection
// that the pool never retires.
func openEngine(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// withConn runs fn against the engine's raw driver connection.
func withConn(ctx context.Context, db *sql.DB, fn func(*sqlite3.SQLiteConn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(c)
	})
}

// serializeImage returns the full image of the main database.
func serializeImage(ctx context.Context, db *sql.DB) ([]byte, error) {
	var image []byte
	err := withConn(ctx, db, func(c *sqlite3.SQLiteConn) error {
		b, err := c.Serialize("main")
		if err != nil {
			return err
		}
		image = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return image, nil
}

// restoreImage replaces the main database with image and verifies that the
// result is a readable database.
//
// The image is staged in a scratch engine and copied page by page with the
// backup API. A deserialized database cannot grow past its loaded size, so
// it is only ever read from.
func restoreImage(ctx context.Context, db *sql.DB, image []byte) error {
	staging, err := openEngine(ctx)
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	defer staging.Close()

	err = withConn(ctx, staging, func(c *sqlite3.SQLiteConn) error {
		return c.Deserialize(append([]byte(nil), image...), "main")
	})
	if err != nil {
		return fmt.Errorf("deserialize: %w", err)
	}
	if err := quickCheck(ctx, staging); err != nil {
		return err
	}

	// An in-memory destination only accepts pages of its own size.
	var pageSize int
	if err := staging.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return fmt.Errorf("read page size: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d", pageSize)); err != nil {
		return fmt.Errorf("set page size: %w", err)
	}

	err = withConn(ctx, db, func(dst *sqlite3.SQLiteConn) error {
		return withConn(ctx, staging, func(src *sqlite3.SQLiteConn) error {
			return copyDatabase(dst, src)
		})
	})
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := quickCheck(ctx, db); err != nil {
		return err
	}
	return applyPragmas(ctx, db)
}

// copyDatabase overwrites dst's main database with src's.
func copyDatabase(dst, src *sqlite3.SQLiteConn) error {
	backup, err := dst.Backup("main", src, "main")
	if err != nil {
		return err
	}
	for {
		done, err := backup.Step(-1)
		if err != nil {
			backup.Finish()
			return err
		}
		if done {
			break
		}
	}
	return backup.Finish()
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		return fmt.Errorf("verify image: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("verify image: %s", check)
	}
	return nil
}

// persistLocked serializes the engine and hands the image to the durability
// strategy. Caller holds the write lock (or has exclusive access).
func (s *Store) persistLocked(ctx context.Context) error {
	image, err := serializeImage(ctx, s.db)
	if err != nil {
		return &PersistenceError{Location: s.durable.Location(), Err: err}
	}
	if err := s.durable.Persist(ctx, image); err != nil {
		return &PersistenceError{Location: s.durable.Location(), Err: err}
	}
	s.image = image
	s.dirty = false
	return nil
}

// rollbackLocked restores the last durable image after a failed persist.
// It runs even when ctx is already cancelled.
func (s *Store) rollbackLocked(ctx context.Context, cause *PersistenceError) error {
	ctx = context.WithoutCancel(ctx)
	if err := restoreImage(ctx, s.db, s.image); err != nil {
		s.dirty = true
		slog.Error("rollback after failed persist failed; engine ahead of durable image",
			"location", s.durable.Location(),
			"persist_error", cause.Err,
			"rollback_error", err,
		)
		cause.RolledBack = false
		cause.Err = errors.Join(cause.Err, fmt.Errorf("rollback: %w", err))
		return cause
	}

	slog.Warn("persist failed, write rolled back",
		"location", s.durable.Location(),
		"error", cause.Err,
	)
	cause.RolledBack = true
	return cause
}

// Flush persists the current image even if nothing changed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.persistLocked(ctx)
}

// Close flushes state left behind by a failed rollback, then releases the
// engine. Subsequent calls return nil.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true

	var flushErr error
	if s.dirty {
		flushErr = s.persistLocked(context.Background())
	}
	closeErr := s.db.Close()
	slog.Info("store closed", "location", s.durable.Location())
	return errors.Join(flushErr, closeErr)
}

// Location describes where the image is persisted.
func (s *Store) Location() string {
	return s.durable.Location()
}

// Image returns a copy of the last durable image.
func (s *Store) Image() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.image...)
}

// CheckReport is the outcome of Check.
type CheckReport struct {
	Integrity          []string        `json:"integrity"`
	ForeignKeyFailures []ForeignKeyRef `json:"foreign_key_failures"`
	SchemaVersion      int64           `json:"schema_version"`
}

// ForeignKeyRef is one row of PRAGMA foreign_key_check.
type ForeignKeyRef struct {
	Table  string `json:"table"`
	RowID  int64  `json:"rowid"`
	Parent string `json:"parent"`
}

// OK reports whether the check found no problems.
func (r CheckReport) OK() bool {
	return len(r.Integrity) == 1 && r.Integrity[0] == "ok" && len(r.ForeignKeyFailures) == 0
}

// Check runs the engine's integrity and foreign key checks.
func (s *Store) Check(ctx context.Context) (CheckReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return CheckReport{}, ErrClosed
	}

	report := CheckReport{Integrity: []string{}, ForeignKeyFailures: []ForeignKeyRef{}}

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return CheckReport{}, fmt.Errorf("integrity check: %w", err)
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return CheckReport{}, fmt.Errorf("scan integrity check: %w", err)
		}
		report.Integrity = append(report.Integrity, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return CheckReport{}, fmt.Errorf("iterate integrity check: %w", err)
	}

	fkRows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return CheckReport{}, fmt.Errorf("foreign key check: %w", err)
	}
	for fkRows.Next() {
		var ref ForeignKeyRef
		var rowID sql.NullInt64
		var fkid int64
		if err := fkRows.Scan(&ref.Table, &rowID, &ref.Parent, &fkid); err != nil {
			fkRows.Close()
			return CheckReport{}, fmt.Errorf("scan foreign key check: %w", err)
		}
		ref.RowID = rowID.Int64
		report.ForeignKeyFailures = append(report.ForeignKeyFailures, ref)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return CheckReport{}, fmt.Errorf("iterate foreign key check: %w", err)
	}

	report.SchemaVersion, err = schemaVersion(ctx, s.db)
	if err != nil {
		return CheckReport{}, err
	}
	return report, nil
}
