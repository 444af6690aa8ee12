package user

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"clubhub/internal/paging"
)

// Role is the access level of an account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role may manage sessions and attendance.
func (r Role) Staff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	ID   string
	Role Role
}

// User is a club member account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Batch        string    `json:"batch,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SetPassword hashes and stores pwd.
func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether pwd matches the stored hash.
func (u *User) CheckPassword(pwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pwd)) == nil
}

// Filter narrows user listings. Zero values match everything.
type Filter struct {
	Role   Role
	Batch  string
	Active *bool
	Search string
}

// Repository persists users. Get-style methods return an apperr NotFound
// error when nothing matches.
type Repository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, f Filter, p paging.Page) ([]User, int, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]User, error)
	ListActiveStudents(ctx context.Context) ([]User, error)
	CountUsersByRole(ctx context.Context) (map[Role]int, error)
}

func cleanEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
