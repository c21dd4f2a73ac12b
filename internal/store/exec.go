package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// QueryAll runs a parameterized read statement and returns every row.
// Parameters are bound positionally (?) and never interpolated.
// Returns an empty slice, not nil, when nothing matches.
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return s.query(ctx, query, 0, args)
}

// QueryOne runs a read statement and returns its first row. ok is false
// when the statement matched nothing.
func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (Row, bool, error) {
	rows, err := s.query(ctx, query, 1, args)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) query(ctx context.Context, query string, limit int, args []any) ([]Row, error) {
	if !isReadStatement(query) {
		return nil, &QueryError{Statement: query, Err: ErrNotReadOnly}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newQueryError(query, err)
	}
	defer rows.Close()

	out, err := scanRows(rows, limit)
	if err != nil {
		return nil, newQueryError(query, err)
	}
	return out, nil
}

// Execute runs a mutating statement and persists the full image before
// returning. The statement text runs in one transaction, so a multi-statement
// text applies entirely or not at all.
//
// On a QueryError nothing was applied. On a PersistenceError the write is
// not committed: the engine has been restored to the last durable image
// unless the error reports RolledBack=false.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, ErrClosed
	}

	if err := setQueryOnly(ctx, s.db, false); err != nil {
		return Result{}, err
	}
	defer func() {
		if err := setQueryOnly(context.WithoutCancel(ctx), s.db, true); err != nil {
			slog.Error("failed to restore query_only", "error", err)
		}
	}()

	res, err := s.execTx(ctx, query, args)
	if err != nil {
		return Result{}, err
	}

	if err := s.persistLocked(ctx); err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			return Result{}, s.rollbackLocked(ctx, pe)
		}
		return Result{}, err
	}

	slog.Debug("statement executed",
		"rows_affected", res.RowsAffected,
		"last_insert_id", res.LastInsertID,
		"bytes", len(s.image),
	)
	return res, nil
}

// execTx applies the statement inside a transaction on the engine.
func (s *Store) execTx(ctx context.Context, query string, args []any) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, newQueryError(query, err)
	}

	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, newQueryError(query, err)
	}
	if out.LastInsertID, err = res.LastInsertId(); err != nil {
		return Result{}, newQueryError(query, err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, newQueryError(query, err)
	}
	return out, nil
}

// setQueryOnly toggles PRAGMA query_only. The engine stays query-only
// outside Execute, so a write smuggled through the read path fails.
func setQueryOnly(ctx context.Context, db *sql.DB, on bool) error {
	pragma := "PRAGMA query_only = OFF"
	if on {
		pragma = "PRAGMA query_only = ON"
	}
	if _, err := db.ExecContext(ctx, pragma); err != nil {
		return fmt.Errorf("failed to execute %q: %w", pragma, err)
	}
	return nil
}

// readKeywords are the leading keywords accepted by QueryAll and QueryOne.
var readKeywords = []string{"SELECT", "WITH", "VALUES", "EXPLAIN"}

// isReadStatement reports whether the statement starts with a read keyword,
// ignoring leading whitespace, comments and parentheses.
func isReadStatement(query string) bool {
	q := skipLeading(query)
	for _, kw := range readKeywords {
		if len(q) >= len(kw) && strings.EqualFold(q[:len(kw)], kw) {
			if len(q) == len(kw) || !isIdentChar(q[len(kw)]) {
				return true
			}
		}
	}
	return false
}

func skipLeading(q string) string {
	for {
		q = strings.TrimLeft(q, " \t\r\n(")
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = q[i+2:]
		default:
			return q
		}
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
