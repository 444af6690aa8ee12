package session

import (
	"context"
	"strings"
	"time"

	"clubhub/internal/apperr"
	"clubhub/internal/logging"
	"clubhub/internal/paging"
	"clubhub/internal/user"
)

// Service manages the session lifecycle.
type Service struct {
	repo   Repository
	seeder Seeder
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a session service. seeder may be nil, in which case new
// sessions start without attendance rows.
func NewService(repo Repository, seeder Seeder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, seeder: seeder, loc: loc, now: time.Now}
}

// SetSeeder wires the attendance seeder after construction.
func (s *Service) SetSeeder(seeder Seeder) { s.seeder = seeder }

// Location is the timezone session dates are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// CreateInput carries the fields of a new session.
type CreateInput struct {
	Title       string `json:"title" binding:"required,min=3,max=200"`
	Description string `json:"description" binding:"max=2000"`
	Date        string `json:"date" binding:"required"`
	StartTime   string `json:"startTime" binding:"required,clock"`
	EndTime     string `json:"endTime" binding:"required,clock"`
	Location    string `json:"location" binding:"max=200"`
	Type        Type   `json:"type" binding:"omitempty,sessiontype"`
	AgendaID    string `json:"agenda"`
	MaxCapacity int    `json:"maxCapacity" binding:"omitempty,min=1,max=10000"`
}

// Created is the result of Create.
type Created struct {
	Session Session `json:"session"`
	Seeded  int     `json:"attendanceSeeded"`
}

// Create stores a new session and seeds one absent attendance row per active
// student. Seeding is best effort: a failure is logged and the session stays.
func (s *Service) Create(ctx context.Context, actor user.Actor, in CreateInput) (Created, error) {
	if !actor.Role.Staff() {
		return Created{}, apperr.Forbidden("only teachers and admins can create sessions")
	}
	date, err := ParseDate(in.Date, s.loc)
	if err != nil {
		return Created{}, apperr.Validation("%s", err.Error())
	}
	if err := checkTimes(in.StartTime, in.EndTime); err != nil {
		return Created{}, err
	}
	typ := in.Type
	if typ == "" {
		typ = TypeWorkshop
	}
	if !typ.Valid() {
		return Created{}, apperr.Validation("unknown session type %q", typ)
	}
	capacity := in.MaxCapacity
	if capacity == 0 {
		capacity = DefaultMaxCapacity
	}

	now := s.now().UTC()
	sess, err := s.repo.CreateSession(ctx, Session{
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Date:            date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Location:        strings.TrimSpace(in.Location),
		Type:            typ,
		CreatedBy:       actor.ID,
		AgendaID:        in.AgendaID,
		MaxCapacity:     capacity,
		RegisteredUsers: []string{},
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Created{}, err
	}

	out := Created{Session: sess}
	if s.seeder != nil {
		n, err := s.seeder.SeedSession(ctx, sess.ID, actor.ID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("session", sess.ID).Msg("attendance seeding failed, session kept")
		}
		out.Seeded = n
	}
	return out, nil
}

// Get returns a session by id, including inactive ones.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.repo.GetSession(ctx, id)
}

// List returns a page of sessions.
func (s *Service) List(ctx context.Context, f Filter, p paging.Page) ([]Session, paging.Meta, error) {
	p = p.Normalize()
	sessions, total, err := s.repo.ListSessions(ctx, f, p)
	if err != nil {
		return nil, paging.Meta{}, err
	}
	return sessions, paging.NewMeta(p, total), nil
}

// Upcoming returns up to limit active sessions from today onwards.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]Session, error) {
	y, m, d := s.now().In(s.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	sessions, _, err := s.repo.ListSessions(ctx, Filter{From: &today, Ascending: true}, paging.Page{Page: 1, Limit: limit})
	return sessions, err
}

// Recent returns up to limit active sessions dated before today, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Session, error) {
	y, m, d := s.now().In(s.loc).Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(-time.Nanosecond)
	sessions, _, err := s.repo.ListSessions(ctx, Filter{To: &end}, paging.Page{Page: 1, Limit: limit})
	return sessions, err
}

// InRange returns every session (active or not) dated within [from, to].
func (s *Service) InRange(ctx context.Context, from, to *time.Time) ([]Session, error) {
	var out []Session
	f := Filter{From: from, To: to, IncludeInactive: true, Ascending: true}
	for page := 1; ; page++ {
		batch, total, err := s.repo.ListSessions(ctx, f, paging.Page{Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// Patch lists the fields of a session that may be updated.
type Patch struct {
	Title       *string `json:"title" binding:"omitempty,min=3,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	Date        *string `json:"date"`
	StartTime   *string `json:"startTime" binding:"omitempty,clock"`
	EndTime     *string `json:"endTime" binding:"omitempty,clock"`
	Location    *string `json:"location" binding:"omitempty,max=200"`
	Type        *Type   `json:"type" binding:"omitempty,sessiontype"`
	MaxCapacity *int    `json:"maxCapacity" binding:"omitempty,min=1,max=10000"`
	IsActive    *bool   `json:"isActive"`
}

// Update applies the whitelisted fields of p. Attendance rows are untouched.
func (s *Service) Update(ctx context.Context, actor user.Actor, id string, p Patch) (Session, error) {
	if !actor.Role.Staff() {
		return Session{}, apperr.Forbidden("only teachers and admins can update sessions")
	}
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if p.Title != nil {
		sess.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		sess.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		date, err := ParseDate(*p.Date, s.loc)
		if err != nil {
			return Session{}, apperr.Validation("%s", err.Error())
		}
		sess.Date = date
	}
	if p.StartTime != nil {
		sess.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		sess.EndTime = *p.EndTime
	}
	if p.Location != nil {
		sess.Location = strings.TrimSpace(*p.Location)
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return Session{}, apperr.Validation("unknown session type %q", *p.Type)
		}
		sess.Type = *p.Type
	}
	if p.MaxCapacity != nil {
		sess.MaxCapacity = *p.MaxCapacity
	}
	if p.IsActive != nil {
		sess.IsActive = *p.IsActive
	}
	if err := checkTimes(sess.StartTime, sess.EndTime); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = s.now().UTC()
	return s.repo.UpdateSession(ctx, sess)
}

// Delete deactivates a session. Its attendance history stays queryable.
func (s *Service) Delete(ctx context.Context, actor user.Actor, id string) (Session, error) {
	inactive := false
	return s.Update(ctx, actor, id, Patch{IsActive: &inactive})
}

// Register adds the actor to the session's registration list.
func (s *Service) Register(ctx context.Context, actor user.Actor, id string) (Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	switch {
	case !sess.IsActive:
		return Session{}, apperr.InvalidState("session is no longer active")
	case sess.IsRegistered(actor.ID):
		return Session{}, apperr.Conflict("already registered for this session")
	case len(sess.RegisteredUsers) >= sess.MaxCapacity:
		return Session{}, apperr.Conflict("session is full")
	}
	return s.repo.AddRegistration(ctx, id, actor.ID)
}

// Unregister removes the actor from the session's registration list.
func (s *Service) Unregister(ctx context.Context, actor user.Actor, id string) (Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsRegistered(actor.ID) {
		return Session{}, apperr.InvalidState("not registered for this session")
	}
	return s.repo.RemoveRegistration(ctx, id, actor.ID)
}

func checkTimes(start, end string) error {
	sh, sm, err := ParseClock(start)
	if err != nil {
		return apperr.Validation("startTime: %s", err.Error())
	}
	eh, em, err := ParseClock(end)
	if err != nil {
		return apperr.Validation("endTime: %s", err.Error())
	}
	if eh*60+em <= sh*60+sm {
		return apperr.Validation("endTime must be after startTime")
	}
	return nil
}
