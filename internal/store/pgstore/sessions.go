package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/session"
)

const sessionColumns = `s.id, s.title, s.description, s.date, s.start_time, s.end_time, s.location, s.type,
	s.created_by, s.agenda_id, s.max_capacity, s.is_active, s.created_at, s.updated_at,
	(SELECT COALESCE(string_agg(r.user_id, ',' ORDER BY r.registered_at), '')
	   FROM session_registrations r WHERE r.session_id = s.id)`

func scanSession(row scanner) (session.Session, error) {
	var sess session.Session
	var typ, registered string
	err := row.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.Date, &sess.StartTime, &sess.EndTime,
		&sess.Location, &typ, &sess.CreatedBy, &sess.AgendaID, &sess.MaxCapacity, &sess.IsActive,
		&sess.CreatedAt, &sess.UpdatedAt, &registered)
	sess.Type = session.Type(typ)
	sess.RegisteredUsers = splitIDs(registered)
	return sess, err
}

func splitIDs(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, description, date, start_time, end_time, location, type,
			created_by, agenda_id, max_capacity, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sess.ID, sess.Title, sess.Description, sess.Date, sess.StartTime, sess.EndTime, sess.Location,
		string(sess.Type), sess.CreatedBy, sess.AgendaID, sess.MaxCapacity, sess.IsActive, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return session.Session{}, err
	}
	for _, uid := range sess.RegisteredUsers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_registrations (session_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, sess.ID, uid); err != nil {
			return session.Session{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, err
	}
	if sess.RegisteredUsers == nil {
		sess.RegisteredUsers = []string{}
	}
	return sess, nil
}

// UpdateSession writes the scalar fields. Registrations change only through
// AddRegistration and RemoveRegistration.
func (s *Store) UpdateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET title = $2, description = $3, date = $4, start_time = $5, end_time = $6, location = $7,
			type = $8, agenda_id = $9, max_capacity = $10, is_active = $11, updated_at = $12
		WHERE id = $1
	`, sess.ID, sess.Title, sess.Description, sess.Date, sess.StartTime, sess.EndTime, sess.Location,
		string(sess.Type), sess.AgendaID, sess.MaxCapacity, sess.IsActive, sess.UpdatedAt)
	if err != nil {
		return session.Session{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.Session{}, apperr.NotFound("session not found")
	}
	return s.GetSession(ctx, sess.ID)
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id))
	return sess, notFound(err, "session")
}

// sessionWhere translates f into SQL predicates.
func sessionWhere(f session.Filter) *where {
	w := &where{}
	if !f.IncludeInactive {
		w.add("s.is_active")
	}
	if f.Type != "" {
		w.add("s.type = ?", string(f.Type))
	}
	if f.From != nil {
		w.add("s.date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("s.date <= ?", *f.To)
	}
	return w
}

func sessionOrder(ascending bool) string {
	if ascending {
		return " ORDER BY s.date ASC, s.start_time ASC"
	}
	return " ORDER BY s.date DESC, s.start_time DESC"
}

func (s *Store) ListSessions(ctx context.Context, f session.Filter, p paging.Page) ([]session.Session, int, error) {
	w := sessionWhere(f)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions s`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions s` + w.String() + sessionOrder(f.Ascending)
	if p.Limit > 0 {
		query += ` LIMIT ` + w.next(p.Limit)
	}
	query += ` OFFSET ` + w.next(p.Skip())

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sess)
	}
	return out, total, rows.Err()
}

// AddRegistration locks the session row so concurrent joins cannot exceed
// the capacity.
func (s *Store) AddRegistration(ctx context.Context, sessionID, userID string) (session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, err
	}
	defer tx.Rollback()

	var active bool
	var capacity, registered int
	err = tx.QueryRowContext(ctx, `SELECT is_active, max_capacity FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&active, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, apperr.NotFound("session not found")
	}
	if err != nil {
		return session.Session{}, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_registrations WHERE session_id = $1`, sessionID).Scan(&registered); err != nil {
		return session.Session{}, err
	}
	if !active || registered >= capacity {
		return session.Session{}, apperr.Conflict("session is full or already joined")
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO session_registrations (session_id, user_id, registered_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, sessionID, userID, time.Now().UTC())
	switch {
	case pgCode(err) == codeForeignKeyViolation:
		return session.Session{}, apperr.NotFound("user not found")
	case err != nil:
		return session.Session{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.Session{}, apperr.Conflict("session is full or already joined")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, sessionID); err != nil {
		return session.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, err
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) RemoveRegistration(ctx context.Context, sessionID, userID string) (session.Session, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_registrations WHERE session_id = $1 AND user_id = $2`, sessionID, userID); err != nil {
		return session.Session{}, err
	}
	return s.GetSession(ctx, sessionID)
}
