package safety

import (
	"context"
	"fmt"

	"github.com/roach88/safetydb/internal/store"
)

// Document is a row of documents.
type Document struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Description  *string          `json:"description,omitempty"`
	Category     DocumentCategory `json:"category"`
	Filename     string           `json:"filename"`
	OriginalName *string          `json:"original_name,omitempty"`
	MimeType     *string          `json:"mime_type,omitempty"`
	FileSize     *int64           `json:"file_size,omitempty"`
	Version      string           `json:"version"`
	IsActive     bool             `json:"is_active"`
	UploadedBy   *int64           `json:"uploaded_by,omitempty"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// NewDocument describes an uploaded document. An empty Version means 1.0.
type NewDocument struct {
	Title        string
	Description  *string
	Category     DocumentCategory
	OriginalName string
	MimeType     *string
	FileSize     *int64
	Version      string
	UploadedBy   *int64
}

// AddDocument records a document under a generated stored filename.
func AddDocument(ctx context.Context, q Querier, d NewDocument) (Document, error) {
	if !d.Category.Valid() {
		return Document{}, invalid("category", d.Category, DocumentCategories)
	}
	if err := required("title", d.Title); err != nil {
		return Document{}, err
	}
	if d.Version == "" {
		d.Version = "1.0"
	}
	filename, err := StoredFilename(d.OriginalName)
	if err != nil {
		return Document{}, err
	}

	var original *string
	if d.OriginalName != "" {
		original = &d.OriginalName
	}
	res, err := q.Execute(ctx, `
		INSERT INTO documents
			(title, description, category, filename, original_name, mime_type, file_size, version, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Title, arg(d.Description), string(d.Category), filename, arg(original),
		arg(d.MimeType), arg(d.FileSize), d.Version, arg(d.UploadedBy))
	if err != nil {
		return Document{}, fmt.Errorf("add document: %w", err)
	}

	doc, ok, err := GetDocument(ctx, q, res.LastInsertID)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, fmt.Errorf("document %d: %w", res.LastInsertID, ErrNotFound)
	}
	return doc, nil
}

// GetDocument returns the document with the given id.
func GetDocument(ctx context.Context, q Querier, id int64) (Document, bool, error) {
	row, ok, err := q.QueryOne(ctx, "SELECT * FROM documents WHERE id = ?", id)
	if err != nil || !ok {
		return Document{}, false, err
	}
	return documentFromRow(row), true, nil
}

// ListDocuments returns active documents, optionally in one category,
// ordered by title.
func ListDocuments(ctx context.Context, q Querier, category DocumentCategory) ([]Document, error) {
	query := "SELECT * FROM documents WHERE is_active = 1"
	var args []any
	if category != "" {
		if !category.Valid() {
			return nil, invalid("category", category, DocumentCategories)
		}
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY title, id"

	rows, err := q.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRow(row))
	}
	return docs, nil
}

// ArchiveDocument hides a document from listings without deleting it.
func ArchiveDocument(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx,
		"UPDATE documents SET is_active = 0, updated_at = "+now+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("archive document %d: %w", id, err)
	}
	return expectOne(res, "document", id)
}

// DeleteDocument hard-deletes a document record. The caller removes the
// stored file.
func DeleteDocument(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return expectOne(res, "document", id)
}

func documentFromRow(row store.Row) Document {
	return Document{
		ID:           integer(row, "id"),
		Title:        text(row, "title"),
		Description:  optText(row, "description"),
		Category:     DocumentCategory(text(row, "category")),
		Filename:     text(row, "filename"),
		OriginalName: optText(row, "original_name"),
		MimeType:     optText(row, "mime_type"),
		FileSize:     optInteger(row, "file_size"),
		Version:      text(row, "version"),
		IsActive:     flag(row, "is_active"),
		UploadedBy:   optInteger(row, "uploaded_by"),
		CreatedAt:    text(row, "created_at"),
		UpdatedAt:    text(row, "updated_at"),
	}
}
