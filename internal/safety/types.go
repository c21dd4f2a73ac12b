// Package safety holds the statements route handlers run against the
// store: closed enumerations, single-statement upserts, coalesce-style
// partial updates, stored filenames and audit snapshots.
//
// Every operation takes a Querier, which both *session.Session and
// *store.Store satisfy. Every mutation is one statement, so each call is
// atomic and durable on return.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/safetydb/internal/store"
)

// Querier is the data surface of the session facade.
type Querier interface {
	QueryAll(ctx context.Context, query string, args ...any) ([]store.Row, error)
	QueryOne(ctx context.Context, query string, args ...any) (store.Row, bool, error)
	Execute(ctx context.Context, query string, args ...any) (store.Result, error)
}

// ErrNotFound is returned when a statement addressed a row that does not
// exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a value rejected before reaching the store.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid %s %q: must be one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// IsValidationError returns true if err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// now is the store-side UTC timestamp expression used for every
// application-set timestamp.
const now = "strftime('%Y-%m-%dT%H:%M:%SZ', 'now')"

// Role is a user's access level.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleEmployee   Role = "employee"
)

// Roles lists every Role.
var Roles = []Role{RoleAdmin, RoleManager, RoleSupervisor, RoleEmployee}

func (r Role) Valid() bool { return contains(Roles, r) }

// IncidentType classifies an incident.
type IncidentType string

const (
	IncidentInjury        IncidentType = "injury"
	IncidentNearMiss      IncidentType = "near-miss"
	IncidentProperty      IncidentType = "property"
	IncidentEnvironmental IncidentType = "environmental"
	IncidentEquipment     IncidentType = "equipment"
	IncidentFire          IncidentType = "fire"
	IncidentChemical      IncidentType = "chemical"
	IncidentOther         IncidentType = "other"
)

var IncidentTypes = []IncidentType{
	IncidentInjury, IncidentNearMiss, IncidentProperty, IncidentEnvironmental,
	IncidentEquipment, IncidentFire, IncidentChemical, IncidentOther,
}

func (t IncidentType) Valid() bool { return contains(IncidentTypes, t) }

// Severity ranks an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool { return contains(Severities, s) }

// IncidentStatus tracks an incident through investigation. Transitions are
// not restricted.
type IncidentStatus string

const (
	StatusReported      IncidentStatus = "reported"
	StatusInvestigating IncidentStatus = "investigating"
	StatusResolved      IncidentStatus = "resolved"
	StatusClosed        IncidentStatus = "closed"
)

var IncidentStatuses = []IncidentStatus{StatusReported, StatusInvestigating, StatusResolved, StatusClosed}

func (s IncidentStatus) Valid() bool { return contains(IncidentStatuses, s) }

// PhotoPhase is when a jobsite photo was taken relative to the work.
type PhotoPhase string

const (
	PhasePre    PhotoPhase = "pre"
	PhaseDuring PhotoPhase = "during"
	PhasePost   PhotoPhase = "post"
)

var PhotoPhases = []PhotoPhase{PhasePre, PhaseDuring, PhasePost}

func (p PhotoPhase) Valid() bool { return contains(PhotoPhases, p) }

// Difficulty grades a training module.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

var Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

func (d Difficulty) Valid() bool { return contains(Difficulties, d) }

// ProgressStatus is a user's standing on one training module.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

var ProgressStatuses = []ProgressStatus{ProgressNotStarted, ProgressInProgress, ProgressCompleted}

func (p ProgressStatus) Valid() bool { return contains(ProgressStatuses, p) }

// DocumentCategory classifies a compliance document.
type DocumentCategory string

const (
	DocumentSDS       DocumentCategory = "sds"
	DocumentProcedure DocumentCategory = "procedure"
	DocumentPolicy    DocumentCategory = "policy"
	DocumentPermit    DocumentCategory = "permit"
	DocumentChecklist DocumentCategory = "checklist"
	DocumentManual    DocumentCategory = "manual"
	DocumentOther     DocumentCategory = "other"
)

var DocumentCategories = []DocumentCategory{
	DocumentSDS, DocumentProcedure, DocumentPolicy, DocumentPermit,
	DocumentChecklist, DocumentManual, DocumentOther,
}

func (c DocumentCategory) Valid() bool { return contains(DocumentCategories, c) }

func contains[T ~string](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func invalid[T ~string](field string, v T, set []T) *ValidationError {
	allowed := make([]string, len(set))
	for i, s := range set {
		allowed[i] = string(s)
	}
	return &ValidationError{Field: field, Value: string(v), Allowed: allowed}
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: field, Value: v}
	}
	return nil
}

// Row accessors shared by the entity decoders.

func text(row store.Row, col string) string {
	s, _ := row.String(col)
	return s
}

func optText(row store.Row, col string) *string {
	s, ok := row.String(col)
	if !ok {
		return nil
	}
	return &s
}

func integer(row store.Row, col string) int64 {
	n, _ := row.Int64(col)
	return n
}

func optInteger(row store.Row, col string) *int64 {
	n, ok := row.Int64(col)
	if !ok {
		return nil
	}
	return &n
}

func flag(row store.Row, col string) bool {
	b, _ := row.Bool(col)
	return b
}

// arg turns an optional value into a bind parameter: nil binds NULL.
func arg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// boolArg binds a bool as the 0/1 the flag columns expect.
func boolArg(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// expectOne maps a zero-row mutation onto ErrNotFound.
func expectOne(res store.Result, entity string, id int64) error {
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
