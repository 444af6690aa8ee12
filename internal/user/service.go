package user

import (
	"context"
	"strings"
	"time"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
)

// Service implements account management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RegisterInput carries the fields of a self-service sign-up.
type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Batch    string `json:"batch" binding:"max=50"`
}

// Register creates an active student account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	return s.create(ctx, in, RoleStudent)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role Role) (User, error) {
	email := cleanEmail(in.Email)
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return User{}, apperr.Conflict("email %s is already registered", email)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return User{}, err
	}

	now := s.now().UTC()
	u := User{
		Name:      strings.TrimSpace(in.Name),
		Email:     email,
		Role:      role,
		Batch:     strings.TrimSpace(in.Batch),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.SetPassword(in.Password); err != nil {
		return User{}, apperr.Internal(err, "failed to hash password")
	}
	return s.repo.CreateUser(ctx, u)
}

// CreateAdmin creates an admin account, or promotes and resets the password
// of an existing account with the same email.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (User, error) {
	existing, err := s.repo.GetUserByEmail(ctx, cleanEmail(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return s.create(ctx, RegisterInput{Name: name, Email: email, Password: password}, RoleAdmin)
	}
	if err != nil {
		return User{}, err
	}
	existing.Role = RoleAdmin
	existing.IsActive = true
	if name != "" {
		existing.Name = name
	}
	if err := existing.SetPassword(password); err != nil {
		return User{}, apperr.Internal(err, "failed to hash password")
	}
	existing.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, existing)
}

// Authenticate checks credentials and returns the matching active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.GetUserByEmail(ctx, cleanEmail(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return User{}, apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return User{}, err
	}
	if !u.CheckPassword(password) {
		return User{}, apperr.Unauthorized("invalid email or password")
	}
	if !u.IsActive {
		return User{}, apperr.Forbidden("account deactivated")
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// List returns a page of users. Only staff may list accounts.
func (s *Service) List(ctx context.Context, actor Actor, f Filter, p paging.Page) ([]User, paging.Meta, error) {
	if !actor.Role.Staff() {
		return nil, paging.Meta{}, apperr.Forbidden("only staff can list users")
	}
	p = p.Normalize()
	users, total, err := s.repo.ListUsers(ctx, f, p)
	if err != nil {
		return nil, paging.Meta{}, err
	}
	return users, paging.NewMeta(p, total), nil
}

// ProfileUpdate holds the fields a user may change on a profile.
type ProfileUpdate struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=100"`
	Batch *string `json:"batch" binding:"omitempty,max=50"`
}

// UpdateProfile changes name and batch. Users may edit themselves; admins may
// edit anyone.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, id string, in ProfileUpdate) (User, error) {
	if actor.ID != id && actor.Role != RoleAdmin {
		return User{}, apperr.Forbidden("cannot edit another user's profile")
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Batch != nil {
		u.Batch = strings.TrimSpace(*in.Batch)
	}
	u.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, u)
}

// SetRole changes a user's role. Admin only.
func (s *Service) SetRole(ctx context.Context, actor Actor, id string, role Role) (User, error) {
	if actor.Role != RoleAdmin {
		return User{}, apperr.Forbidden("only admins can change roles")
	}
	if !role.Valid() {
		return User{}, apperr.Validation("unknown role %q", role)
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, u)
}

// Deactivate soft-deletes a user. The record and its history are kept.
func (s *Service) Deactivate(ctx context.Context, actor Actor, id string) (User, error) {
	if actor.Role != RoleAdmin {
		return User{}, apperr.Forbidden("only admins can deactivate users")
	}
	if actor.ID == id {
		return User{}, apperr.InvalidState("admins cannot deactivate themselves")
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.IsActive = false
	u.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, u)
}

// ListActiveStudents returns every active student account.
func (s *Service) ListActiveStudents(ctx context.Context) ([]User, error) {
	return s.repo.ListActiveStudents(ctx)
}

// FindByIDs returns the users with the given ids, skipping unknown ones.
func (s *Service) FindByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.FindUsersByIDs(ctx, ids)
}

// CountByRole returns the number of active accounts per role.
func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	return s.repo.CountUsersByRole(ctx)
}
