package safety

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/safetydb/internal/testutil"
)

func TestStoredFilename(t *testing.T) {
	tests := []struct {
		original string
		wantExt  string
	}{
		{"site.JPG", ".jpg"},
		{"report.final.pdf", ".pdf"},
		{"../../etc/passwd", ""},
		{"noext", ""},
		{"weird.p$f", ""},
		{"long.abcdefghijkl", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			name, err := StoredFilename(tt.original)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(name, tt.wantExt))

			id, err := uuid.Parse(strings.TrimSuffix(name, tt.wantExt))
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(7), id.Version())
		})
	}
}

func TestStoredFilename_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name, err := StoredFilename("photo.png")
		require.NoError(t, err)
		assert.False(t, seen[name], "duplicate stored filename %s", name)
		seen[name] = true
	}
}

func TestAttachPhoto(t *testing.T) {
	s := testutil.NewSession(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice@example.com", RoleSupervisor)
	incident, err := ReportIncident(ctx, s, NewIncident{Title: "Trench wall", Type: IncidentEquipment, Severity: SeverityHigh})
	require.NoError(t, err)

	pre, err := AttachPhoto(ctx, s, NewPhoto{
		OriginalName: "Before Dig.jpeg",
		MimeType:     ptr("image/jpeg"),
		FileSize:     ptr(int64(204800)),
		Phase:        ptr(PhasePre),
		IncidentID:   &incident,
		UploadedBy:   &alice,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "Before Dig.jpeg", pre.Filename)
	assert.True(t, strings.HasSuffix(pre.Filename, ".jpeg"))
	assert.Equal(t, "Before Dig.jpeg", *pre.OriginalName)
	assert.Equal(t, PhasePre, *pre.Phase)

	post, err := AttachPhoto(ctx, s, NewPhoto{OriginalName: "after.jpeg", Phase: ptr(PhasePost), IncidentID: &incident})
	require.NoError(t, err)
	_, err = AttachPhoto(ctx, s, NewPhoto{OriginalName: "unrelated.png"})
	require.NoError(t, err)

	photos, err := PhotosForIncident(ctx, s, incident)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, pre.ID, photos[0].ID)
	assert.Equal(t, post.ID, photos[1].ID)

	byPhase, err := PhotosByPhase(ctx, s, PhasePost)
	require.NoError(t, err)
	require.Len(t, byPhase, 1)
	assert.Equal(t, post.ID, byPhase[0].ID)

	_, err = AttachPhoto(ctx, s, NewPhoto{OriginalName: "x.jpg", Phase: ptr(PhotoPhase("after"))})
	assert.True(t, IsValidationError(err))

	require.NoError(t, DeletePhoto(ctx, s, post.ID))
	assert.ErrorIs(t, DeletePhoto(ctx, s, post.ID), ErrNotFound)
}

func TestDocuments(t *testing.T) {
	s := testutil.NewSession(t)
	ctx := context.Background()
	admin := newUser(t, s, "admin@example.com", RoleAdmin)

	sds, err := AddDocument(ctx, s, NewDocument{
		Title:        "Acetone SDS",
		Category:     DocumentSDS,
		OriginalName: "acetone.pdf",
		UploadedBy:   &admin,
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", sds.Version)
	assert.True(t, sds.IsActive)
	assert.True(t, strings.HasSuffix(sds.Filename, ".pdf"))

	policy, err := AddDocument(ctx, s, NewDocument{Title: "PPE Policy", Category: DocumentPolicy, OriginalName: "ppe.docx", Version: "2.1"})
	require.NoError(t, err)
	assert.Equal(t, "2.1", policy.Version)

	_, err = AddDocument(ctx, s, NewDocument{Title: "Memo", Category: "memo", OriginalName: "m.txt"})
	assert.True(t, IsValidationError(err))

	docs, err := ListDocuments(ctx, s, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Acetone SDS", docs[0].Title)

	only, err := ListDocuments(ctx, s, DocumentPolicy)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, policy.ID, only[0].ID)

	require.NoError(t, ArchiveDocument(ctx, s, sds.ID))
	docs, err = ListDocuments(ctx, s, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	archived, ok, err := GetDocument(ctx, s, sds.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, archived.IsActive)

	require.NoError(t, DeleteDocument(ctx, s, sds.ID))
	assert.ErrorIs(t, DeleteDocument(ctx, s, sds.ID), ErrNotFound)
	assert.ErrorIs(t, ArchiveDocument(ctx, s, sds.ID), ErrNotFound)
}
