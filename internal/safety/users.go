package safety

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/safetydb/internal/store"
)

// User is a row of users. PasswordHash is never serialized.
type User struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Role         Role    `json:"role"`
	Department   *string `json:"department,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
	IsActive     bool    `json:"is_active"`
	LastLogin    *string `json:"last_login,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// NewUser is the input to CreateUser. An empty Role means employee.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Department   *string
	Phone        *string
}

// NormalizeEmail returns the form emails are stored and looked up in:
// NFC, trimmed, lower case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// CreateUser inserts a user and returns its id. A duplicate email fails
// with a unique-constraint QueryError.
func CreateUser(ctx context.Context, q Querier, u NewUser) (int64, error) {
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	if !u.Role.Valid() {
		return 0, invalid("role", u.Role, Roles)
	}
	email := NormalizeEmail(u.Email)
	for _, f := range [][2]string{
		{"email", email},
		{"password_hash", u.PasswordHash},
		{"first_name", u.FirstName},
		{"last_name", u.LastName},
	} {
		if err := required(f[0], f[1]); err != nil {
			return 0, err
		}
	}

	res, err := q.Execute(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, department, phone)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), arg(u.Department), arg(u.Phone))
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", email, err)
	}
	return res.LastInsertID, nil
}

// GetUser returns the user with the given id.
func GetUser(ctx context.Context, q Querier, id int64) (User, bool, error) {
	row, ok, err := q.QueryOne(ctx, "SELECT * FROM users WHERE id = ?", id)
	if err != nil || !ok {
		return User{}, false, err
	}
	return userFromRow(row), true, nil
}

// FindUserByEmail looks a user up by normalized email.
func FindUserByEmail(ctx context.Context, q Querier, email string) (User, bool, error) {
	row, ok, err := q.QueryOne(ctx, "SELECT * FROM users WHERE email = ?", NormalizeEmail(email))
	if err != nil || !ok {
		return User{}, false, err
	}
	return userFromRow(row), true, nil
}

// ListUsers returns users ordered by last then first name.
func ListUsers(ctx context.Context, q Querier, activeOnly bool) ([]User, error) {
	query := "SELECT * FROM users"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY last_name, first_name, id"

	rows, err := q.QueryAll(ctx, query)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

// DeactivateUser soft-deletes a user. Users are never hard-deleted by the
// application.
func DeactivateUser(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx,
		"UPDATE users SET is_active = 0, updated_at = "+now+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	return expectOne(res, "user", id)
}

// RecordLogin stamps last_login.
func RecordLogin(ctx context.Context, q Querier, id int64) error {
	res, err := q.Execute(ctx,
		"UPDATE users SET last_login = "+now+" WHERE id = ? AND is_active = 1", id)
	if err != nil {
		return fmt.Errorf("record login %d: %w", id, err)
	}
	return expectOne(res, "active user", id)
}

func userFromRow(row store.Row) User {
	return User{
		ID:           integer(row, "id"),
		Email:        text(row, "email"),
		PasswordHash: text(row, "password_hash"),
		FirstName:    text(row, "first_name"),
		LastName:     text(row, "last_name"),
		Role:         Role(text(row, "role")),
		Department:   optText(row, "department"),
		Phone:        optText(row, "phone"),
		AvatarURL:    optText(row, "avatar_url"),
		IsActive:     flag(row, "is_active"),
		LastLogin:    optText(row, "last_login"),
		CreatedAt:    text(row, "created_at"),
		UpdatedAt:    text(row, "updated_at"),
	}
}
