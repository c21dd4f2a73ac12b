package store

import (
	"database/sql"
	"fmt"
)

// Row is a single result row: column name to value.
//
// Values are nil (NULL), int64 (INTEGER), float64 (REAL), string (TEXT) or
// []byte (BLOB). When a statement yields duplicate column names the
// rightmost column wins.
type Row map[string]any

// Int64 returns the column as int64. ok is false for NULL, a missing
// column, or a non-integer value.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// String returns the column as string. ok is false for NULL, a missing
// column, or a non-text value.
func (r Row) String(col string) (string, bool) {
	switch v := r[col].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// Bool interprets an INTEGER flag column (is_active, is_required).
func (r Row) Bool(col string) (bool, bool) {
	n, ok := r.Int64(col)
	if !ok {
		return false, false
	}
	return n != 0, true
}

// IsNull reports whether the column is NULL or absent.
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// Result is the outcome of Execute.
type Result struct {
	// LastInsertID is the engine's last generated row id on the store's
	// connection. Meaningful only immediately after an INSERT into a table
	// with an auto-incrementing key.
	LastInsertID int64

	// RowsAffected counts rows changed by the statement itself, excluding
	// trigger and foreign-key action changes.
	RowsAffected int64
}

// scanRows materializes up to limit rows (limit <= 0 means all).
// Always returns a non-nil slice.
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []Row{}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// normalizeValue copies driver-owned buffers and widens integer types.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return append([]byte(nil), val...)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return val
	}
}
