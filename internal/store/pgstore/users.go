package pgstore

import (
	"context"

	"github.com/google/uuid"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/user"
)

const userColumns = `id, name, email, password_hash, role, batch, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (user.User, error) {
	var u user.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Batch, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = user.Role(role)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Batch, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, role = $5, batch = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Batch, u.IsActive, u.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
	}
	if err != nil {
		return user.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, notFound(err, "user")
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	return u, notFound(err, "user")
}

// userWhere translates f into SQL predicates.
func userWhere(f user.Filter) *where {
	w := &where{}
	if f.Role != "" {
		w.add("role = ?", string(f.Role))
	}
	if f.Batch != "" {
		w.add("batch = ?", f.Batch)
	}
	if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		w.add("(name ILIKE ? OR email ILIKE ?)", pattern, pattern)
	}
	return w
}

func (s *Store) ListUsers(ctx context.Context, f user.Filter, p paging.Page) ([]user.User, int, error) {
	w := userWhere(f)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + userColumns + ` FROM users` + w.String() +
		` ORDER BY name LIMIT ` + w.next(p.Limit) + ` OFFSET ` + w.next(p.Skip())
	users, err := s.queryUsers(ctx, query, w.args...)
	return users, total, err
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(1, len(ids))+`)`, args...)
}

func (s *Store) ListActiveStudents(ctx context.Context) ([]user.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE role = $1 AND is_active
		ORDER BY name
	`, string(user.RoleStudent))
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[user.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM users WHERE is_active GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[user.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[user.Role(role)] = n
	}
	return out, rows.Err()
}
