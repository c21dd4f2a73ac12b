package safety

import (
	"context"
	"fmt"

	"github.com/roach88/safetydb/internal/store"
)

// AuditEntry is the input to RecordAudit. Before and After are any values
// MarshalCanonical accepts; nil stores NULL.
type AuditEntry struct {
	UserID     *int64
	Action     string
	EntityType string
	EntityID   *int64
	Before     any
	After      any
	IPAddress  *string
	UserAgent  *string
}

// AuditRecord is a row of audit_logs. OldValues and NewValues hold the
// canonical JSON text as stored.
type AuditRecord struct {
	ID         int64   `json:"id"`
	UserID     *int64  `json:"user_id,omitempty"`
	Action     string  `json:"action"`
	EntityType string  `json:"entity_type"`
	EntityID   *int64  `json:"entity_id,omitempty"`
	OldValues  *string `json:"old_values,omitempty"`
	NewValues  *string `json:"new_values,omitempty"`
	IPAddress  *string `json:"ip_address,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// RecordAudit appends an audit entry. Entries cannot be changed or removed
// afterwards.
func RecordAudit(ctx context.Context, q Querier, e AuditEntry) (int64, error) {
	if err := required("action", e.Action); err != nil {
		return 0, err
	}
	if err := required("entity_type", e.EntityType); err != nil {
		return 0, err
	}
	before, err := snapshot(e.Before)
	if err != nil {
		return 0, fmt.Errorf("audit old_values: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return 0, fmt.Errorf("audit new_values: %w", err)
	}

	res, err := q.Execute(ctx, `
		INSERT INTO audit_logs
			(user_id, action, entity_type, entity_id, old_values, new_values, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, arg(e.UserID), e.Action, e.EntityType, arg(e.EntityID), before, after, arg(e.IPAddress), arg(e.UserAgent))
	if err != nil {
		return 0, fmt.Errorf("record audit %s %s: %w", e.Action, e.EntityType, err)
	}
	return res.LastInsertID, nil
}

// AuditTrail returns the entries for one entity, oldest first.
func AuditTrail(ctx context.Context, q Querier, entityType string, entityID int64) ([]AuditRecord, error) {
	rows, err := q.QueryAll(ctx, `
		SELECT * FROM audit_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	out := make([]AuditRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, auditFromRow(row))
	}
	return out, nil
}

// snapshot returns the canonical JSON text of v, or nil (NULL) for nil.
func snapshot(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func auditFromRow(row store.Row) AuditRecord {
	return AuditRecord{
		ID:         integer(row, "id"),
		UserID:     optInteger(row, "user_id"),
		Action:     text(row, "action"),
		EntityType: text(row, "entity_type"),
		EntityID:   optInteger(row, "entity_id"),
		OldValues:  optText(row, "old_values"),
		NewValues:  optText(row, "new_values"),
		IPAddress:  optText(row, "ip_address"),
		UserAgent:  optText(row, "user_agent"),
		CreatedAt:  text(row, "created_at"),
	}
}
