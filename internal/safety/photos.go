package safety

import (
	"context"
	"fmt"

	"github.com/roach88/safetydb/internal/store"
)

// Photo is a row of photos.
type Photo struct {
	ID           int64       `json:"id"`
	Filename     string      `json:"filename"`
	OriginalName *string     `json:"original_name,omitempty"`
	MimeType     *string     `json:"mime_type,omitempty"`
	FileSize     *int64      `json:"file_size,omitempty"`
	Phase        *PhotoPhase `json:"phase,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Location     *string     `json:"location,omitempty"`
	IncidentID   *int64      `json:"incident_id,omitempty"`
	UploadedBy   *int64      `json:"uploaded_by,omitempty"`
	CreatedAt    string      `json:"created_at"`
}

// NewPhoto describes an upload already written to media storage by the
// caller. The stored filename is generated by AttachPhoto.
type NewPhoto struct {
	OriginalName string
	MimeType     *string
	FileSize     *int64
	Phase        *PhotoPhase
	Description  *string
	Location     *string
	IncidentID   *int64
	UploadedBy   *int64
}

// AttachPhoto records a photo and returns it with its generated stored
// filename.
func AttachPhoto(ctx context.Context, q Querier, p NewPhoto) (Photo, error) {
	if p.Phase != nil && !p.Phase.Valid() {
		return Photo{}, invalid("phase", *p.Phase, PhotoPhases)
	}
	filename, err := StoredFilename(p.OriginalName)
	if err != nil {
		return Photo{}, err
	}

	var original *string
	if p.OriginalName != "" {
		original = &p.OriginalName
	}
	res, err := q.Execute(ctx, `
		INSERT INTO photos
			(filename, original_name, mime_type, file_size, phase, description, location, incident_id, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, filename, arg(original), arg(p.MimeType), arg(p.FileSize), enumArg(p.Phase),
		arg(p.Description), arg(p.Location), arg(p.IncidentID), arg(p.UploadedBy))
	if err != nil {
		return Photo{}, fmt.Errorf("attach photo: %w", err)
	}

	photo, ok, err := getPhoto(ctx, q, res.LastInsertID)
	if err != nil {
		return Photo{}, err
	}
	if !ok {
		return Photo{}, fmt.Errorf("photo %d: %w", res.LastInsertID, ErrNotFound)
	}
	return photo, nil
}

// PhotosForIncident returns an incident's photos in upload order.
func PhotosForIncident(ctx context.Context, q Querier, incidentID int64) ([]Photo, error) {
	rows, err := q.QueryAll(ctx,
		"SELECT * FROM photos WHERE incident_id = ? ORDER BY created_at, id", incidentID)
	if err != nil {
		return nil, err
	}
	return photosFromRows(rows), nil
}

// PhotosByPhase returns every photo taken in phase, newest first.
func PhotosByPhase(ctx context.Context, q Querier, phase PhotoPhase) ([]Photo, error) {
	if !phase.Valid() {
		return nil, invalid("phase", phase, PhotoPhases)
	}
	rows, err := q.QueryAll(ctx,
		"SELECT * FROM photos WHERE phase = ? ORDER BY created_at DESC, id DESC", string(phase))
	if err != nil {
		return nil, err
	}
	return photosFromRows(rows), nil
}

// DeletePhoto removes a photo record. The caller removes the media file.
func DeletePhoto(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete photo %d: %w", id, err)
	}
	return expectOne(res, "photo", id)
}

func getPhoto(ctx context.Context, q Querier, id int64) (Photo, bool, error) {
	row, ok, err := q.QueryOne(ctx, "SELECT * FROM photos WHERE id = ?", id)
	if err != nil || !ok {
		return Photo{}, false, err
	}
	return photoFromRow(row), true, nil
}

func photosFromRows(rows []store.Row) []Photo {
	photos := make([]Photo, 0, len(rows))
	for _, row := range rows {
		photos = append(photos, photoFromRow(row))
	}
	return photos
}

func photoFromRow(row store.Row) Photo {
	p := Photo{
		ID:           integer(row, "id"),
		Filename:     text(row, "filename"),
		OriginalName: optText(row, "original_name"),
		MimeType:     optText(row, "mime_type"),
		FileSize:     optInteger(row, "file_size"),
		Description:  optText(row, "description"),
		Location:     optText(row, "location"),
		IncidentID:   optInteger(row, "incident_id"),
		UploadedBy:   optInteger(row, "uploaded_by"),
		CreatedAt:    text(row, "created_at"),
	}
	if phase, ok := row.String("phase"); ok {
		ph := PhotoPhase(phase)
		p.Phase = &ph
	}
	return p
}
