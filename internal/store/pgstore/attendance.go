package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
)

const recordColumns = `id, session_id, user_id, status, check_in_time, check_out_time, marked_by, notes, method, created_at, updated_at`

func scanRecord(row scanner) (attendance.Record, error) {
	var r attendance.Record
	var status, method string
	var checkIn, checkOut sql.NullTime
	var markedBy sql.NullString
	err := row.Scan(&r.ID, &r.SessionID, &r.UserID, &status, &checkIn, &checkOut, &markedBy, &r.Notes, &method, &r.CreatedAt, &r.UpdatedAt)
	r.Status = attendance.Status(status)
	r.Method = attendance.Method(method)
	r.MarkedBy = markedBy.String
	if checkIn.Valid {
		r.CheckInTime = &checkIn.Time
	}
	if checkOut.Valid {
		r.CheckOutTime = &checkOut.Time
	}
	return r, err
}

func (s *Store) FindRecord(ctx context.Context, sessionID, userID string) (attendance.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendances WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID))
	return r, notFound(err, "attendance record")
}

// applyChangeSQL upserts on the (session_id, user_id) constraint. $6 and $7
// are NULL when the change leaves marked_by or notes alone; $10 selects the
// overwrite policy for the check-in time.
const applyChangeSQL = `
	INSERT INTO attendances (id, session_id, user_id, status, method, marked_by, notes, check_in_time, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, ''), $8, $9, $9)
	ON CONFLICT (session_id, user_id) DO UPDATE SET
		status = EXCLUDED.status,
		method = EXCLUDED.method,
		marked_by = COALESCE($6, attendances.marked_by),
		notes = COALESCE($7, attendances.notes),
		check_in_time = CASE WHEN $10 THEN COALESCE($8, attendances.check_in_time)
		                     ELSE COALESCE(attendances.check_in_time, $8) END,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + recordColumns

func changeArgs(c attendance.Change) []any {
	var markedBy, notes, checkIn any
	if c.MarkedBy != nil {
		markedBy = *c.MarkedBy
	}
	if c.Notes != nil {
		notes = *c.Notes
	}
	if c.CheckIn != nil {
		checkIn = *c.CheckIn
	}
	return []any{
		uuid.NewString(), c.SessionID, c.UserID, string(c.Status), string(c.Method),
		markedBy, notes, checkIn, c.At, c.Policy == attendance.OverwriteCheckIn,
	}
}

func (s *Store) ApplyChange(ctx context.Context, c attendance.Change) (attendance.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, applyChangeSQL, changeArgs(c)...))
	if pgCode(err) == codeForeignKeyViolation {
		return attendance.Record{}, apperr.NotFound("session or user not found")
	}
	return r, err
}

func (s *Store) SetCheckOut(ctx context.Context, sessionID, userID string, at time.Time) (attendance.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `
		UPDATE attendances SET check_out_time = $3, updated_at = $3
		WHERE session_id = $1 AND user_id = $2
		RETURNING `+recordColumns, sessionID, userID, at))
	return r, notFound(err, "attendance record")
}

// seedSQL builds a multi-row insert for n users. Each row takes its id and
// user id; the shared values come first.
func seedSQL(n int) string {
	var b strings.Builder
	b.WriteString(`INSERT INTO attendances (id, session_id, user_id, status, marked_by, method, created_at, updated_at) VALUES `)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $1, $%d, $2, $3, $4, $5, $5)", 6+2*i, 7+2*i)
	}
	b.WriteString(` ON CONFLICT (session_id, user_id) DO NOTHING`)
	return b.String()
}

func (s *Store) SeedAbsent(ctx context.Context, sessionID string, userIDs []string, markedBy string, at time.Time) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var by any
	if markedBy != "" {
		by = markedBy
	}
	total := 0
	for start := 0; start < len(userIDs); start += seedBatch {
		batch := userIDs[start:min(start+seedBatch, len(userIDs))]
		args := []any{sessionID, string(attendance.StatusAbsent), by, string(attendance.MethodAuto), at}
		for _, uid := range batch {
			args = append(args, uuid.NewString(), uid)
		}
		res, err := s.db.ExecContext(ctx, seedSQL(len(batch)), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// seedBatch keeps a seeding insert well below the 65535 parameter limit.
const seedBatch = 1000

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendances
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendances WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

func (s *Store) countBy(ctx context.Context, column, value string) (attendance.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM attendances WHERE `+column+` = $1 GROUP BY status`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := attendance.Counts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[attendance.Status(status)] = n
	}
	return out, rows.Err()
}

func (s *Store) CountBySession(ctx context.Context, sessionID string) (attendance.Counts, error) {
	return s.countBy(ctx, "session_id", sessionID)
}

func (s *Store) CountByUser(ctx context.Context, userID string) (attendance.Counts, error) {
	return s.countBy(ctx, "user_id", userID)
}

// countBySessionsSQL binds every id as one text[] parameter, so the number of
// sessions is not bounded by the protocol's parameter limit.
const countBySessionsSQL = `
	SELECT session_id, status, COUNT(*) FROM attendances
	WHERE session_id = ANY($1)
	GROUP BY session_id, status
`

func (s *Store) CountBySessions(ctx context.Context, sessionIDs []string) (map[string]attendance.Counts, error) {
	out := make(map[string]attendance.Counts)
	if len(sessionIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, countBySessionsSQL, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		var n int
		if err := rows.Scan(&id, &status, &n); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = attendance.Counts{}
		}
		out[id][attendance.Status(status)] = n
	}
	return out, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, e attendance.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, session_id, user_id, status, method, action, actor_id, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.SessionID, e.UserID, string(e.Status), string(e.Method), string(e.Action), e.ActorID, e.At)
	return err
}

func (s *Store) ListAudit(ctx context.Context, sessionID string) ([]attendance.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, status, method, action, actor_id, at
		FROM attendance_audit WHERE session_id = $1
		ORDER BY at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attendance.AuditEntry
	for rows.Next() {
		var e attendance.AuditEntry
		var status, method, action string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &status, &method, &action, &e.ActorID, &e.At); err != nil {
			return nil, err
		}
		e.Status, e.Method, e.Action = attendance.Status(status), attendance.Method(method), attendance.Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
