package safety

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/safetydb/internal/store"
	"github.com/roach88/safetydb/internal/testutil"
)

func TestMarshalCanonical_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int64", int64(-42), "-42"},
		{"int", 7, "7"},
		{"bool", true, "true"},
		{"float", 2.5, "2.5"},
		{"whole float", float64(3), "3"},
		{"bytes", []byte("hi"), `"aGk="`},
		{"nil string pointer", (*string)(nil), "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"mixed array", []any{int64(1), "x", nil, false}, `[1,"x",null,false]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": int64(1),
		"alpha": map[string]any{"b": int64(1), "a": int64(2)},
		"beta":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":null,"zebra":1}`, string(got))
}

func TestMarshalCanonical_UTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	got, err := MarshalCanonical(map[string]any{
		"\uE000":     int64(1),
		"\U00010000": int64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestMarshalCanonical_NFCAndSeparators(t *testing.T) {
	// Decomposed e-acute composes; U+2028 stays literal; an escaped
	// backslash followed by u2028 is left alone.
	got, err := MarshalCanonical("e\u0301\u2028\\u2028")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\u2028\\\\u2028\"", string(got))
}

func TestMarshalCanonical_Struct(t *testing.T) {
	inc := Incident{ID: 3, Title: "Spill", Type: IncidentChemical, Severity: SeverityLow, Status: StatusReported}
	got, err := MarshalCanonical(inc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"created_at":"","id":3,"severity":"low","status":"reported","title":"Spill","type":"chemical","updated_at":""}`,
		string(got))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	assert.Error(t, err)
	_, err = MarshalCanonical(map[string]any{"x": math.NaN()})
	assert.Error(t, err)
	_, err = MarshalCanonical(make(chan int))
	assert.Error(t, err)
}

func TestRecordAudit_SnapshotsAndTrail(t *testing.T) {
	s := testutil.NewSession(t)
	ctx := context.Background()
	admin := newUser(t, s, "admin@example.com", RoleAdmin)

	id, err := ReportIncident(ctx, s, NewIncident{Title: "Dust", Type: IncidentEnvironmental, Severity: SeverityLow})
	require.NoError(t, err)
	before, _, err := GetIncident(ctx, s, id)
	require.NoError(t, err)

	require.NoError(t, SetIncidentStatus(ctx, s, id, StatusInvestigating))
	row, _, err := s.QueryOne(ctx, "SELECT id, status FROM incidents WHERE id = ?", id)
	require.NoError(t, err)

	_, err = RecordAudit(ctx, s, AuditEntry{
		UserID:     &admin,
		Action:     "create",
		EntityType: "incident",
		EntityID:   &id,
		After:      before,
		IPAddress:  ptr("10.0.0.8"),
	})
	require.NoError(t, err)
	_, err = RecordAudit(ctx, s, AuditEntry{
		UserID:     &admin,
		Action:     "update",
		EntityType: "incident",
		EntityID:   &id,
		Before:     map[string]any{"status": "reported"},
		After:      row,
	})
	require.NoError(t, err)

	trail, err := AuditTrail(ctx, s, "incident", id)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, "create", trail[0].Action)
	assert.Nil(t, trail[0].OldValues)
	require.NotNil(t, trail[0].NewValues)
	assert.Contains(t, *trail[0].NewValues, `"status":"reported"`)
	assert.Equal(t, "10.0.0.8", *trail[0].IPAddress)

	assert.Equal(t, "update", trail[1].Action)
	assert.Equal(t, `{"status":"reported"}`, *trail[1].OldValues)
	assert.Equal(t, `{"id":1,"status":"investigating"}`, *trail[1].NewValues)
}

func TestRecordAudit_EntriesAreImmutable(t *testing.T) {
	s := testutil.NewSession(t)
	ctx := context.Background()

	id, err := RecordAudit(ctx, s, AuditEntry{Action: "login", EntityType: "user"})
	require.NoError(t, err)

	_, err = s.Execute(ctx, "UPDATE audit_logs SET action = 'logout' WHERE id = ?", id)
	assert.True(t, store.IsConstraintViolation(err, store.ConstraintTrigger))
	_, err = s.Execute(ctx, "DELETE FROM audit_logs WHERE id = ?", id)
	assert.True(t, store.IsConstraintViolation(err, store.ConstraintTrigger))

	_, err = RecordAudit(ctx, s, AuditEntry{EntityType: "user"})
	assert.True(t, IsValidationError(err))
}
