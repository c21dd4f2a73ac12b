package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrNotReadOnly is wrapped in a QueryError when a mutating statement is
	// passed to QueryAll or QueryOne.
	ErrNotReadOnly = errors.New("statement is not a read statement; use Execute")
)

// Constraint categorizes the engine constraint a statement violated.
type Constraint string

const (
	ConstraintNone       Constraint = ""
	ConstraintUnique     Constraint = "unique"
	ConstraintCheck      Constraint = "check"
	ConstraintForeignKey Constraint = "foreign_key"
	ConstraintNotNull    Constraint = "not_null"
	// ConstraintTrigger is a RAISE(ABORT) from a lifecycle trigger.
	ConstraintTrigger Constraint = "trigger"
	ConstraintOther   Constraint = "other"
)

// SchemaError is returned by Open when the schema cannot be applied. It is
// fatal: the process must not serve traffic against a malformed schema.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// QueryError reports a malformed statement, an arity or type mismatch, or a
// constraint violation. The statement was not applied.
type QueryError struct {
	// Statement is the statement text as passed by the caller.
	Statement string

	// Constraint is set when the engine rejected the statement on a
	// constraint; ConstraintNone otherwise.
	Constraint Constraint

	// Err is the underlying engine error.
	Err error
}

func (e *QueryError) Error() string {
	if e.Constraint != ConstraintNone {
		return fmt.Sprintf("query: %s constraint: %v (statement: %s)", e.Constraint, e.Err, compact(e.Statement))
	}
	return fmt.Sprintf("query: %v (statement: %s)", e.Err, compact(e.Statement))
}

func (e *QueryError) Unwrap() error { return e.Err }

// PersistenceError reports that the image could not be handed to the
// durability strategy. The write that triggered it is NOT committed.
type PersistenceError struct {
	Location string

	// RolledBack is true when the engine was restored to the last durable
	// image. When false the engine holds state that is not on disk and the
	// store retries the flush on Close.
	RolledBack bool

	Err error
}

func (e *PersistenceError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "NOT rolled back"
	}
	return fmt.Sprintf("persist %s (%s): %v", e.Location, state, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LoadCorruptionError is returned by Open when a stored image exists but is
// not a readable database.
type LoadCorruptionError struct {
	Location string

	// QuarantinedTo is where the unreadable image was moved when recovery
	// was requested. Empty when Open failed fast.
	QuarantinedTo string

	Err error
}

func (e *LoadCorruptionError) Error() string {
	if e.QuarantinedTo != "" {
		return fmt.Sprintf("load %s: unreadable image moved to %s: %v", e.Location, e.QuarantinedTo, e.Err)
	}
	return fmt.Sprintf("load %s: unreadable image: %v", e.Location, e.Err)
}

func (e *LoadCorruptionError) Unwrap() error { return e.Err }

// IsQueryError returns true if err is, or wraps, a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// IsConstraintViolation returns true if err is a QueryError caused by the
// given kind of constraint.
func IsConstraintViolation(err error, kind Constraint) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Constraint == kind
	}
	return false
}

// IsPersistenceError returns true if err is, or wraps, a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsSchemaError returns true if err is, or wraps, a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsLoadCorruption returns true if err is, or wraps, a LoadCorruptionError.
func IsLoadCorruption(err error) bool {
	var le *LoadCorruptionError
	return errors.As(err, &le)
}

func newQueryError(statement string, err error) *QueryError {
	return &QueryError{
		Statement:  statement,
		Constraint: classifyConstraint(err),
		Err:        err,
	}
}

// classifyConstraint maps SQLite extended result codes onto Constraint.
func classifyConstraint(err error) Constraint {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return ConstraintNone
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ConstraintUnique
	case sqlite3.ErrConstraintCheck:
		return ConstraintCheck
	case sqlite3.ErrConstraintForeignKey:
		return ConstraintForeignKey
	case sqlite3.ErrConstraintNotNull:
		return ConstraintNotNull
	case sqlite3.ErrConstraintTrigger:
		return ConstraintTrigger
	default:
		return ConstraintOther
	}
}

// compact collapses statement whitespace for error messages.
func compact(statement string) string {
	out := make([]byte, 0, len(statement))
	space := false
	for i := 0; i < len(statement); i++ {
		c := statement[i]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			space = len(out) > 0
			continue
		}
		if space {
			out = append(out, ' ')
			space = false
		}
		out = append(out, c)
	}
	return string(out)
}
