package safety

import (
	"context"
	"fmt"

	"github.com/roach88/safetydb/internal/store"
)

// Module is a row of training_modules.
type Module struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Category        string     `json:"category"`
	DurationMinutes *int64     `json:"duration_minutes,omitempty"`
	ContentURL      *string    `json:"content_url,omitempty"`
	ThumbnailURL    *string    `json:"thumbnail_url,omitempty"`
	Difficulty      Difficulty `json:"difficulty"`
	IsRequired      bool       `json:"is_required"`
	IsActive        bool       `json:"is_active"`
	CreatedBy       *int64     `json:"created_by,omitempty"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
}

// NewModule is the input to CreateModule. An empty Difficulty means
// beginner.
type NewModule struct {
	Title           string
	Description     *string
	Category        string
	DurationMinutes *int64
	ContentURL      *string
	ThumbnailURL    *string
	Difficulty      Difficulty
	IsRequired      bool
	CreatedBy       *int64
}

// Progress is a user's training_progress row joined with its module.
type Progress struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"user_id"`
	ModuleID       int64          `json:"module_id"`
	ModuleTitle    string         `json:"module_title"`
	Category       string         `json:"category"`
	IsRequired     bool           `json:"is_required"`
	Status         ProgressStatus `json:"status"`
	Progress       int64          `json:"progress"`
	Score          *int64         `json:"score,omitempty"`
	StartedAt      *string        `json:"started_at,omitempty"`
	CompletedAt    *string        `json:"completed_at,omitempty"`
	CertificateURL *string        `json:"certificate_url,omitempty"`
}

// CreateModule inserts an active training module.
func CreateModule(ctx context.Context, q Querier, m NewModule) (int64, error) {
	if m.Difficulty == "" {
		m.Difficulty = DifficultyBeginner
	}
	if !m.Difficulty.Valid() {
		return 0, invalid("difficulty", m.Difficulty, Difficulties)
	}
	if err := required("title", m.Title); err != nil {
		return 0, err
	}
	if err := required("category", m.Category); err != nil {
		return 0, err
	}

	res, err := q.Execute(ctx, `
		INSERT INTO training_modules
			(title, description, category, duration_minutes, content_url, thumbnail_url, difficulty, is_required, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Title, arg(m.Description), m.Category, arg(m.DurationMinutes), arg(m.ContentURL),
		arg(m.ThumbnailURL), string(m.Difficulty), boolArg(m.IsRequired), arg(m.CreatedBy))
	if err != nil {
		return 0, fmt.Errorf("create module: %w", err)
	}
	return res.LastInsertID, nil
}

// ListModules returns modules, required first, then by title.
func ListModules(ctx context.Context, q Querier, activeOnly bool) ([]Module, error) {
	query := "SELECT * FROM training_modules"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY is_required DESC, title, id"

	rows, err := q.QueryAll(ctx, query)
	if err != nil {
		return nil, err
	}
	modules := make([]Module, 0, len(rows))
	for _, row := range rows {
		modules = append(modules, moduleFromRow(row))
	}
	return modules, nil
}

// DeactivateModule hides a module from assignment. Existing progress is
// kept.
func DeactivateModule(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx,
		"UPDATE training_modules SET is_active = 0, updated_at = "+now+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate module %d: %w", id, err)
	}
	return expectOne(res, "module", id)
}

// StartTraining opens progress for (user, module). It is a single upsert:
// an existing not_started row moves to in_progress, any other existing row
// is left alone. started reports whether a row was created or moved.
func StartTraining(ctx context.Context, q Querier, userID, moduleID int64) (started bool, err error) {
	res, err := q.Execute(ctx, `
		INSERT INTO training_progress (user_id, module_id, status, started_at)
		VALUES (?, ?, 'in_progress', `+now+`)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			status     = 'in_progress',
			started_at = COALESCE(started_at, excluded.started_at)
		WHERE status = 'not_started'
	`, userID, moduleID)
	if err != nil {
		return false, fmt.Errorf("start training user=%d module=%d: %w", userID, moduleID, err)
	}
	return res.RowsAffected > 0, nil
}

// UpdateTrainingProgress sets progress on an existing row. Reaching 100
// completes the row in the same statement; lowering progress on a
// completed row reopens it.
func UpdateTrainingProgress(ctx context.Context, q Querier, userID, moduleID int64, progress int) error {
	if progress < 0 || progress > 100 {
		return &ValidationError{Field: "progress", Value: fmt.Sprint(progress)}
	}
	res, err := q.Execute(ctx, `
		UPDATE training_progress SET
			progress   = ?,
			status     = CASE WHEN status = 'not_started' THEN 'in_progress' ELSE status END,
			started_at = COALESCE(started_at, `+now+`)
		WHERE user_id = ? AND module_id = ?
	`, progress, userID, moduleID)
	if err != nil {
		return fmt.Errorf("update training progress user=%d module=%d: %w", userID, moduleID, err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("training progress user=%d module=%d: %w", userID, moduleID, ErrNotFound)
	}
	return nil
}

// CompleteTraining marks (user, module) completed in one upsert, creating
// the row when training was never started. A nil score keeps any stored
// score; completed_at keeps its first value.
func CompleteTraining(ctx context.Context, q Querier, userID, moduleID int64, score *int64) error {
	_, err := q.Execute(ctx, `
		INSERT INTO training_progress
			(user_id, module_id, status, progress, score, started_at, completed_at)
		VALUES (?, ?, 'completed', 100, ?, `+now+`, `+now+`)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			status       = 'completed',
			progress     = 100,
			score        = COALESCE(excluded.score, score),
			started_at   = COALESCE(started_at, excluded.started_at),
			completed_at = COALESCE(completed_at, excluded.completed_at)
	`, userID, moduleID, arg(score))
	if err != nil {
		return fmt.Errorf("complete training user=%d module=%d: %w", userID, moduleID, err)
	}
	return nil
}

// ProgressFor returns a user's progress on every module they started.
func ProgressFor(ctx context.Context, q Querier, userID int64) ([]Progress, error) {
	rows, err := q.QueryAll(ctx, `
		SELECT tp.*, tm.title AS module_title, tm.category, tm.is_required
		FROM training_progress tp
		JOIN training_modules tm ON tm.id = tp.module_id
		WHERE tp.user_id = ?
		ORDER BY tm.is_required DESC, tm.title, tp.id
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Progress, 0, len(rows))
	for _, row := range rows {
		out = append(out, Progress{
			ID:             integer(row, "id"),
			UserID:         integer(row, "user_id"),
			ModuleID:       integer(row, "module_id"),
			ModuleTitle:    text(row, "module_title"),
			Category:       text(row, "category"),
			IsRequired:     flag(row, "is_required"),
			Status:         ProgressStatus(text(row, "status")),
			Progress:       integer(row, "progress"),
			Score:          optInteger(row, "score"),
			StartedAt:      optText(row, "started_at"),
			CompletedAt:    optText(row, "completed_at"),
			CertificateURL: optText(row, "certificate_url"),
		})
	}
	return out, nil
}

func moduleFromRow(row store.Row) Module {
	return Module{
		ID:              integer(row, "id"),
		Title:           text(row, "title"),
		Description:     optText(row, "description"),
		Category:        text(row, "category"),
		DurationMinutes: optInteger(row, "duration_minutes"),
		ContentURL:      optText(row, "content_url"),
		ThumbnailURL:    optText(row, "thumbnail_url"),
		Difficulty:      Difficulty(text(row, "difficulty")),
		IsRequired:      flag(row, "is_required"),
		IsActive:        flag(row, "is_active"),
		CreatedBy:       optInteger(row, "created_by"),
		CreatedAt:       text(row, "created_at"),
		UpdatedAt:       text(row, "updated_at"),
	}
}
