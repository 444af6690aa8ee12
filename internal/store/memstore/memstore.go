// Package memstore keeps users, sessions and attendance in process memory.
// It backs STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
	"clubhub/internal/paging"
	"clubhub/internal/session"
	"clubhub/internal/user"
)

type pairKey struct{ session, user string }

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User
	emails   map[string]string
	sessions map[string]session.Session
	records  map[pairKey]attendance.Record
	audit    []attendance.AuditEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		emails:   make(map[string]string),
		sessions: make(map[string]session.Session),
		records:  make(map[pairKey]attendance.Record),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// ---------- users ----------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	if old.Email != u.Email {
		if _, taken := s.emails[u.Email]; taken {
			return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
		}
		delete(s.emails, old.Email)
		s.emails[u.Email] = u.ID
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context, f user.Filter, p paging.Page) ([]user.User, int, error) {
	s.mu.RLock()
	var out []user.User
	search := strings.ToLower(f.Search)
	for _, u := range s.users {
		switch {
		case f.Role != "" && u.Role != f.Role:
			continue
		case f.Batch != "" && u.Batch != f.Batch:
			continue
		case f.Active != nil && u.IsActive != *f.Active:
			continue
		case search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(u.Email, search):
			continue
		}
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paging.Slice(out, p), len(out), nil
}

func (s *Store) FindUsersByIDs(_ context.Context, ids []string) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.User, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListActiveStudents(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []user.User
	for _, u := range s.users {
		if u.Role == user.RoleStudent && u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CountUsersByRole(_ context.Context) (map[user.Role]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[user.Role]int)
	for _, u := range s.users {
		if u.IsActive {
			out[u.Role]++
		}
	}
	return out, nil
}

// ---------- sessions ----------

func cloneSession(sess session.Session) session.Session {
	sess.RegisteredUsers = append([]string{}, sess.RegisteredUsers...)
	return sess
}

func (s *Store) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return cloneSession(sess), nil
}

func (s *Store) UpdateSession(_ context.Context, sess session.Session) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return cloneSession(sess), nil
}

func (s *Store) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	return cloneSession(sess), nil
}

func (s *Store) ListSessions(_ context.Context, f session.Filter, p paging.Page) ([]session.Session, int, error) {
	s.mu.RLock()
	var out []session.Session
	for _, sess := range s.sessions {
		switch {
		case !f.IncludeInactive && !sess.IsActive:
			continue
		case f.Type != "" && sess.Type != f.Type:
			continue
		case f.From != nil && sess.Date.Before(*f.From):
			continue
		case f.To != nil && sess.Date.After(*f.To):
			continue
		}
		out = append(out, cloneSession(sess))
	}
	s.mu.RUnlock()
	earlier := func(a, b session.Session) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.StartTime < b.StartTime
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Ascending {
			return earlier(out[i], out[j])
		}
		return earlier(out[j], out[i])
	})
	return paging.Slice(out, p), len(out), nil
}

func (s *Store) AddRegistration(_ context.Context, sessionID, userID string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	if !sess.IsActive || sess.IsRegistered(userID) || len(sess.RegisteredUsers) >= sess.MaxCapacity {
		return session.Session{}, apperr.Conflict("session is full or already joined")
	}
	sess.RegisteredUsers = append(sess.RegisteredUsers, userID)
	s.sessions[sessionID] = sess
	return cloneSession(sess), nil
}

func (s *Store) RemoveRegistration(_ context.Context, sessionID, userID string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	kept := sess.RegisteredUsers[:0:0]
	for _, id := range sess.RegisteredUsers {
		if id != userID {
			kept = append(kept, id)
		}
	}
	sess.RegisteredUsers = kept
	s.sessions[sessionID] = sess
	return cloneSession(sess), nil
}

// ---------- attendance ----------

func cloneRecord(r attendance.Record) attendance.Record {
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		r.CheckInTime = &t
	}
	if r.CheckOutTime != nil {
		t := *r.CheckOutTime
		r.CheckOutTime = &t
	}
	return r
}

func (s *Store) FindRecord(_ context.Context, sessionID, userID string) (attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[pairKey{sessionID, userID}]
	if !ok {
		return attendance.Record{}, apperr.NotFound("attendance record not found")
	}
	return cloneRecord(r), nil
}

func (s *Store) ApplyChange(_ context.Context, c attendance.Change) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{c.SessionID, c.UserID}
	r, ok := s.records[key]
	if !ok {
		r = attendance.Record{ID: uuid.NewString(), SessionID: c.SessionID, UserID: c.UserID, CreatedAt: c.At}
	}
	r.Status = c.Status
	r.Method = c.Method
	r.UpdatedAt = c.At
	if c.MarkedBy != nil {
		r.MarkedBy = *c.MarkedBy
	}
	if c.Notes != nil {
		r.Notes = *c.Notes
	}
	if c.CheckIn != nil && (c.Policy == attendance.OverwriteCheckIn || r.CheckInTime == nil) {
		t := *c.CheckIn
		r.CheckInTime = &t
	}
	s.records[key] = r
	return cloneRecord(r), nil
}

func (s *Store) SetCheckOut(_ context.Context, sessionID, userID string, at time.Time) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{sessionID, userID}
	r, ok := s.records[key]
	if !ok {
		return attendance.Record{}, apperr.NotFound("attendance record not found")
	}
	r.CheckOutTime = &at
	r.UpdatedAt = at
	s.records[key] = r
	return cloneRecord(r), nil
}

func (s *Store) SeedAbsent(_ context.Context, sessionID string, userIDs []string, markedBy string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, uid := range userIDs {
		key := pairKey{sessionID, uid}
		if _, ok := s.records[key]; ok {
			continue
		}
		s.records[key] = attendance.Record{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			UserID:    uid,
			Status:    attendance.StatusAbsent,
			MarkedBy:  markedBy,
			Method:    attendance.MethodAuto,
			CreatedAt: at,
			UpdatedAt: at,
		}
		n++
	}
	return n, nil
}

func (s *Store) ListBySession(_ context.Context, sessionID string) ([]attendance.Record, error) {
	s.mu.RLock()
	var out []attendance.Record
	for key, r := range s.records {
		if key.session == sessionID {
			out = append(out, cloneRecord(r))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]attendance.Record, error) {
	s.mu.RLock()
	var out []attendance.Record
	for key, r := range s.records {
		if key.user == userID {
			out = append(out, cloneRecord(r))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) count(match func(pairKey) bool) attendance.Counts {
	out := attendance.Counts{}
	for key, r := range s.records {
		if match(key) {
			out[r.Status]++
		}
	}
	return out
}

func (s *Store) CountBySession(_ context.Context, sessionID string) (attendance.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count(func(k pairKey) bool { return k.session == sessionID }), nil
}

func (s *Store) CountByUser(_ context.Context, userID string) (attendance.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count(func(k pairKey) bool { return k.user == userID }), nil
}

func (s *Store) CountBySessions(_ context.Context, sessionIDs []string) (map[string]attendance.Counts, error) {
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]attendance.Counts)
	for key, r := range s.records {
		if !want[key.session] {
			continue
		}
		if out[key.session] == nil {
			out[key.session] = attendance.Counts{}
		}
		out[key.session][r.Status]++
	}
	return out, nil
}

func (s *Store) AppendAudit(_ context.Context, e attendance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, sessionID string) ([]attendance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.AuditEntry
	for _, e := range s.audit {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
