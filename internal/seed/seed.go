// Package seed loads the embedded demo data set.
//
// Seeding is idempotent: rows are matched on email (users) or title
// (everything else) and existing rows are never modified. Each row is one
// conditional insert, so a re-run after a partial failure picks up where
// the last run stopped.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/roach88/safetydb/internal/safety"
)

//go:embed demo.yaml
var demoYAML []byte

// Fixtures is the demo data set.
type Fixtures struct {
	Users     []UserFixture     `yaml:"users"`
	Modules   []ModuleFixture   `yaml:"modules"`
	Incidents []IncidentFixture `yaml:"incidents"`
	Documents []DocumentFixture `yaml:"documents"`
}

type UserFixture struct {
	Email      string      `yaml:"email"`
	Password   string      `yaml:"password"`
	FirstName  string      `yaml:"first_name"`
	LastName   string      `yaml:"last_name"`
	Role       safety.Role `yaml:"role"`
	Department string      `yaml:"department"`
}

type ModuleFixture struct {
	Title           string            `yaml:"title"`
	Description     string            `yaml:"description"`
	Category        string            `yaml:"category"`
	DurationMinutes int64             `yaml:"duration_minutes"`
	Difficulty      safety.Difficulty `yaml:"difficulty"`
	Required        bool              `yaml:"required"`
}

type IncidentFixture struct {
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Type        safety.IncidentType   `yaml:"type"`
	Severity    safety.Severity       `yaml:"severity"`
	Status      safety.IncidentStatus `yaml:"status"`
	Location    string                `yaml:"location"`
	DaysAgo     int                   `yaml:"days_ago"`
}

type DocumentFixture struct {
	Title       string                  `yaml:"title"`
	Description string                  `yaml:"description"`
	Category    safety.DocumentCategory `yaml:"category"`
	Filename    string                  `yaml:"filename"`
}

// Demo parses the embedded demo data set.
func Demo() (Fixtures, error) {
	return Parse(demoYAML)
}

// Parse decodes and validates a fixture document. Unknown keys are errors.
func Parse(data []byte) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return Fixtures{}, err
	}
	return f, nil
}

func (f Fixtures) validate() error {
	for _, u := range f.Users {
		if !u.Role.Valid() {
			return fmt.Errorf("user %s: invalid role %q", u.Email, u.Role)
		}
	}
	for _, m := range f.Modules {
		if !m.Difficulty.Valid() {
			return fmt.Errorf("module %q: invalid difficulty %q", m.Title, m.Difficulty)
		}
	}
	for _, i := range f.Incidents {
		if !i.Type.Valid() || !i.Severity.Valid() || !i.Status.Valid() {
			return fmt.Errorf("incident %q: invalid type, severity or status", i.Title)
		}
	}
	for _, d := range f.Documents {
		if !d.Category.Valid() {
			return fmt.Errorf("document %q: invalid category %q", d.Title, d.Category)
		}
	}
	return nil
}

// Options configures Run.
type Options struct {
	// BcryptCost is the cost for demo password hashes. Zero means
	// bcrypt.DefaultCost.
	BcryptCost int
}

// Counts is the outcome for one table.
type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Report is the outcome of Run.
type Report struct {
	Users     Counts `json:"users"`
	Modules   Counts `json:"training_modules"`
	Incidents Counts `json:"incidents"`
	Documents Counts `json:"documents"`
}

// Run inserts every fixture not already present.
func Run(ctx context.Context, q safety.Querier, f Fixtures, opts Options) (Report, error) {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	var report Report
	var err error
	if report.Users, err = seedUsers(ctx, q, f.Users, cost); err != nil {
		return report, err
	}
	if report.Modules, err = seedModules(ctx, q, f.Modules); err != nil {
		return report, err
	}
	if report.Incidents, err = seedIncidents(ctx, q, f.Incidents); err != nil {
		return report, err
	}
	if report.Documents, err = seedDocuments(ctx, q, f.Documents); err != nil {
		return report, err
	}

	slog.Info("seed complete",
		"users", report.Users.Created,
		"training_modules", report.Modules.Created,
		"incidents", report.Incidents.Created,
		"documents", report.Documents.Created,
	)
	return report, nil
}

func seedUsers(ctx context.Context, q safety.Querier, users []UserFixture, cost int) (Counts, error) {
	var c Counts
	for _, u := range users {
		email := safety.NormalizeEmail(u.Email)

		// Skip the hash for accounts that already exist; the insert below
		// is still conditional.
		if _, ok, err := safety.FindUserByEmail(ctx, q, email); err != nil {
			return c, err
		} else if ok {
			c.Skipped++
			slog.Debug("user exists", "email", email)
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return c, fmt.Errorf("hash password for %s: %w", email, err)
		}
		res, err := q.Execute(ctx, `
			INSERT INTO users (email, password_hash, first_name, last_name, role, department)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (email) DO NOTHING
		`, email, string(hash), u.FirstName, u.LastName, string(u.Role), u.Department)
		if err != nil {
			return c, fmt.Errorf("seed user %s: %w", email, err)
		}
		tally(&c, res.RowsAffected, "user", email)
	}
	return c, nil
}

func seedModules(ctx context.Context, q safety.Querier, modules []ModuleFixture) (Counts, error) {
	var c Counts
	for _, m := range modules {
		required := 0
		if m.Required {
			required = 1
		}
		res, err := q.Execute(ctx, `
			INSERT INTO training_modules (title, description, category, duration_minutes, difficulty, is_required)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM training_modules WHERE title = ?)
		`, m.Title, m.Description, m.Category, m.DurationMinutes, string(m.Difficulty), required, m.Title)
		if err != nil {
			return c, fmt.Errorf("seed module %q: %w", m.Title, err)
		}
		tally(&c, res.RowsAffected, "training module", m.Title)
	}
	return c, nil
}

func seedIncidents(ctx context.Context, q safety.Querier, incidents []IncidentFixture) (Counts, error) {
	var c Counts
	for _, i := range incidents {
		res, err := q.Execute(ctx, `
			INSERT INTO incidents (title, description, type, severity, status, location, reporter_id, incident_date)
			SELECT ?, ?, ?, ?, ?, ?,
				(SELECT id FROM users WHERE role = 'employee' ORDER BY id LIMIT 1),
				strftime('%Y-%m-%dT%H:%M:%SZ', 'now', ?)
			WHERE NOT EXISTS (SELECT 1 FROM incidents WHERE title = ?)
		`, i.Title, i.Description, string(i.Type), string(i.Severity), string(i.Status), i.Location,
			fmt.Sprintf("-%d days", i.DaysAgo), i.Title)
		if err != nil {
			return c, fmt.Errorf("seed incident %q: %w", i.Title, err)
		}
		tally(&c, res.RowsAffected, "incident", i.Title)
	}
	return c, nil
}

func seedDocuments(ctx context.Context, q safety.Querier, docs []DocumentFixture) (Counts, error) {
	var c Counts
	for _, d := range docs {
		res, err := q.Execute(ctx, `
			INSERT INTO documents (title, description, category, filename)
			SELECT ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM documents WHERE title = ?)
		`, d.Title, d.Description, string(d.Category), d.Filename, d.Title)
		if err != nil {
			return c, fmt.Errorf("seed document %q: %w", d.Title, err)
		}
		tally(&c, res.RowsAffected, "document", d.Title)
	}
	return c, nil
}

func tally(c *Counts, affected int64, kind, key string) {
	if affected == 0 {
		c.Skipped++
		slog.Debug(kind+" exists", "key", key)
		return
	}
	c.Created++
	slog.Debug(kind+" created", "key", key)
}
