package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/safetydb/internal/store"
)

// Incident is a row of incidents.
type Incident struct {
	ID                int64          `json:"id"`
	Title             string         `json:"title"`
	Description       *string        `json:"description,omitempty"`
	Type              IncidentType   `json:"type"`
	Severity          Severity       `json:"severity"`
	Status            IncidentStatus `json:"status"`
	Location          *string        `json:"location,omitempty"`
	IncidentDate      *string        `json:"incident_date,omitempty"`
	ReporterID        *int64         `json:"reporter_id,omitempty"`
	AssignedTo        *int64         `json:"assigned_to,omitempty"`
	Witnesses         *string        `json:"witnesses,omitempty"`
	RootCause         *string        `json:"root_cause,omitempty"`
	CorrectiveActions *string        `json:"corrective_actions,omitempty"`
	ResolutionNotes   *string        `json:"resolution_notes,omitempty"`
	ResolvedAt        *string        `json:"resolved_at,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

// NewIncident is the input to ReportIncident.
type NewIncident struct {
	Title        string
	Description  *string
	Type         IncidentType
	Severity     Severity
	Location     *string
	IncidentDate *string
	ReporterID   *int64
	AssignedTo   *int64
	Witnesses    *string
}

// IncidentPatch is a partial update: nil fields keep their stored value.
type IncidentPatch struct {
	Title             *string
	Description       *string
	Type              *IncidentType
	Severity          *Severity
	Status            *IncidentStatus
	Location          *string
	IncidentDate      *string
	AssignedTo        *int64
	Witnesses         *string
	RootCause         *string
	CorrectiveActions *string
	ResolutionNotes   *string
}

// IncidentFilter narrows ListIncidents. Zero fields do not filter.
type IncidentFilter struct {
	Status     IncidentStatus
	Severity   Severity
	Type       IncidentType
	ReporterID int64
	AssignedTo int64
	Limit      int
	Offset     int
}

// ReportIncident inserts an incident in status reported.
func ReportIncident(ctx context.Context, q Querier, in NewIncident) (int64, error) {
	if err := required("title", in.Title); err != nil {
		return 0, err
	}
	if !in.Type.Valid() {
		return 0, invalid("type", in.Type, IncidentTypes)
	}
	if !in.Severity.Valid() {
		return 0, invalid("severity", in.Severity, Severities)
	}

	res, err := q.Execute(ctx, `
		INSERT INTO incidents
			(title, description, type, severity, location, incident_date, reporter_id, assigned_to, witnesses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.Title, arg(in.Description), string(in.Type), string(in.Severity),
		arg(in.Location), arg(in.IncidentDate), arg(in.ReporterID), arg(in.AssignedTo), arg(in.Witnesses))
	if err != nil {
		return 0, fmt.Errorf("report incident: %w", err)
	}
	return res.LastInsertID, nil
}

// GetIncident returns the incident with the given id.
func GetIncident(ctx context.Context, q Querier, id int64) (Incident, bool, error) {
	row, ok, err := q.QueryOne(ctx, "SELECT * FROM incidents WHERE id = ?", id)
	if err != nil || !ok {
		return Incident{}, false, err
	}
	return incidentFromRow(row), true, nil
}

// ListIncidents returns incidents matching f, newest first.
func ListIncidents(ctx context.Context, q Querier, f IncidentFilter) ([]Incident, error) {
	var where []string
	var args []any
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, invalid("status", f.Status, IncidentStatuses)
		}
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		if !f.Severity.Valid() {
			return nil, invalid("severity", f.Severity, Severities)
		}
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Type != "" {
		if !f.Type.Valid() {
			return nil, invalid("type", f.Type, IncidentTypes)
		}
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.ReporterID != 0 {
		where = append(where, "reporter_id = ?")
		args = append(args, f.ReporterID)
	}
	if f.AssignedTo != 0 {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}

	query := "SELECT * FROM incidents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	incidents := make([]Incident, 0, len(rows))
	for _, row := range rows {
		incidents = append(incidents, incidentFromRow(row))
	}
	return incidents, nil
}

// UpdateIncident applies patch in one statement. Columns whose patch
// field is nil keep their value. Moving into resolved stamps resolved_at.
func UpdateIncident(ctx context.Context, q Querier, id int64, patch IncidentPatch) error {
	if patch.Type != nil && !patch.Type.Valid() {
		return invalid("type", *patch.Type, IncidentTypes)
	}
	if patch.Severity != nil && !patch.Severity.Valid() {
		return invalid("severity", *patch.Severity, Severities)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return invalid("status", *patch.Status, IncidentStatuses)
	}

	res, err := q.Execute(ctx, `
		UPDATE incidents SET
			title              = COALESCE(?, title),
			description        = COALESCE(?, description),
			type               = COALESCE(?, type),
			severity           = COALESCE(?, severity),
			status             = COALESCE(?, status),
			location           = COALESCE(?, location),
			incident_date      = COALESCE(?, incident_date),
			assigned_to        = COALESCE(?, assigned_to),
			witnesses          = COALESCE(?, witnesses),
			root_cause         = COALESCE(?, root_cause),
			corrective_actions = COALESCE(?, corrective_actions),
			resolution_notes   = COALESCE(?, resolution_notes),
			updated_at         = `+now+`
		WHERE id = ?
	`,
		arg(patch.Title), arg(patch.Description), enumArg(patch.Type), enumArg(patch.Severity),
		enumArg(patch.Status), arg(patch.Location), arg(patch.IncidentDate), arg(patch.AssignedTo),
		arg(patch.Witnesses), arg(patch.RootCause), arg(patch.CorrectiveActions), arg(patch.ResolutionNotes),
		id,
	)
	if err != nil {
		return fmt.Errorf("update incident %d: %w", id, err)
	}
	return expectOne(res, "incident", id)
}

// SetIncidentStatus moves an incident to status.
func SetIncidentStatus(ctx context.Context, q Querier, id int64, status IncidentStatus) error {
	return UpdateIncident(ctx, q, id, IncidentPatch{Status: &status})
}

// DeleteIncident hard-deletes an incident. Its photos survive with
// incident_id set to NULL.
func DeleteIncident(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx, "DELETE FROM incidents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete incident %d: %w", id, err)
	}
	return expectOne(res, "incident", id)
}

// IncidentCounts returns the number of incidents per status. Every status
// is present in the result.
func IncidentCounts(ctx context.Context, q Querier) (map[IncidentStatus]int64, error) {
	rows, err := q.QueryAll(ctx, "SELECT status, COUNT(*) AS n FROM incidents GROUP BY status")
	if err != nil {
		return nil, err
	}
	counts := make(map[IncidentStatus]int64, len(IncidentStatuses))
	for _, s := range IncidentStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[IncidentStatus(text(row, "status"))] = integer(row, "n")
	}
	return counts, nil
}

// enumArg binds an optional enumeration as its string value.
func enumArg[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func incidentFromRow(row store.Row) Incident {
	return Incident{
		ID:                integer(row, "id"),
		Title:             text(row, "title"),
		Description:       optText(row, "description"),
		Type:              IncidentType(text(row, "type")),
		Severity:          Severity(text(row, "severity")),
		Status:            IncidentStatus(text(row, "status")),
		Location:          optText(row, "location"),
		IncidentDate:      optText(row, "incident_date"),
		ReporterID:        optInteger(row, "reporter_id"),
		AssignedTo:        optInteger(row, "assigned_to"),
		Witnesses:         optText(row, "witnesses"),
		RootCause:         optText(row, "root_cause"),
		CorrectiveActions: optText(row, "corrective_actions"),
		ResolutionNotes:   optText(row, "resolution_notes"),
		ResolvedAt:        optText(row, "resolved_at"),
		CreatedAt:         text(row, "created_at"),
		UpdatedAt:         text(row, "updated_at"),
	}
}
