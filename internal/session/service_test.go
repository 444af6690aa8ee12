package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/session"
	"clubhub/internal/store/memstore"
	"clubhub/internal/user"
)

var (
	staff   = user.Actor{ID: "teacher-1", Role: user.RoleTeacher}
	student = user.Actor{ID: "student-1", Role: user.RoleStudent}
)

type seeder struct {
	calls []string
	n     int
	err   error
}

func (s *seeder) SeedSession(_ context.Context, sessionID, markedBy string) (int, error) {
	s.calls = append(s.calls, sessionID+"/"+markedBy)
	return s.n, s.err
}

func input(date string) session.CreateInput {
	return session.CreateInput{Title: "  Intro to Go ", Date: date, StartTime: "10:00", EndTime: "11:30"}
}

func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(time.DateOnly)
}

func TestCreateSeedsAttendance(t *testing.T) {
	seed := &seeder{n: 3}
	s := session.NewService(memstore.New(), seed, time.UTC)

	out, err := s.Create(context.Background(), staff, input("2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Seeded)
	assert.Equal(t, []string{out.Session.ID + "/teacher-1"}, seed.calls)

	sess := out.Session
	assert.Equal(t, "Intro to Go", sess.Title)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), sess.Date)
	assert.Equal(t, session.TypeWorkshop, sess.Type)
	assert.Equal(t, session.DefaultMaxCapacity, sess.MaxCapacity)
	assert.Equal(t, "teacher-1", sess.CreatedBy)
	assert.True(t, sess.IsActive)
}

func TestCreateKeepsSessionWhenSeedingFails(t *testing.T) {
	seed := &seeder{err: errors.New("db hiccup")}
	store := memstore.New()
	s := session.NewService(store, seed, time.UTC)

	out, err := s.Create(context.Background(), staff, input("2026-03-10"))
	require.NoError(t, err)
	assert.Zero(t, out.Seeded)

	_, err = s.Get(context.Background(), out.Session.ID)
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	s := session.NewService(memstore.New(), nil, time.UTC)
	ctx := context.Background()

	_, err := s.Create(ctx, student, input("2026-03-10"))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	cases := map[string]session.CreateInput{
		"bad date":     input("10/03/2026"),
		"end = start":  {Title: "Go", Date: "2026-03-10", StartTime: "10:00", EndTime: "10:00"},
		"end < start":  {Title: "Go", Date: "2026-03-10", StartTime: "10:00", EndTime: "09:00"},
		"bad clock":    {Title: "Go", Date: "2026-03-10", StartTime: "9:00", EndTime: "10:00"},
		"unknown type": {Title: "Go", Date: "2026-03-10", StartTime: "09:00", EndTime: "10:00", Type: "party"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, staff, in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestUpdateWhitelist(t *testing.T) {
	s := session.NewService(memstore.New(), nil, time.UTC)
	ctx := context.Background()
	created, err := s.Create(ctx, staff, input("2026-03-10"))
	require.NoError(t, err)
	id := created.Session.ID

	title, loc, capacity := "Advanced Go", "Lab 2", 12
	typ := session.TypeLab
	got, err := s.Update(ctx, staff, id, session.Patch{Title: &title, Location: &loc, MaxCapacity: &capacity, Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", got.Title)
	assert.Equal(t, "Lab 2", got.Location)
	assert.Equal(t, 12, got.MaxCapacity)
	assert.Equal(t, session.TypeLab, got.Type)
	assert.Equal(t, created.Session.CreatedBy, got.CreatedBy)

	end := "09:00"
	_, err = s.Update(ctx, staff, id, session.Patch{EndTime: &end})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.Update(ctx, student, id, session.Patch{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	deleted, err := s.Delete(ctx, staff, id)
	require.NoError(t, err)
	assert.False(t, deleted.IsActive)
	_, err = s.Get(ctx, id)
	assert.NoError(t, err)
}

func TestRegistration(t *testing.T) {
	s := session.NewService(memstore.New(), nil, time.UTC)
	ctx := context.Background()
	in := input("2026-03-10")
	in.MaxCapacity = 1
	created, err := s.Create(ctx, staff, in)
	require.NoError(t, err)
	id := created.Session.ID

	got, err := s.Register(ctx, student, id)
	require.NoError(t, err)
	assert.True(t, got.IsRegistered(student.ID))

	_, err = s.Register(ctx, student, id)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = s.Register(ctx, user.Actor{ID: "student-2", Role: user.RoleStudent}, id)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	got, err = s.Unregister(ctx, student, id)
	require.NoError(t, err)
	assert.False(t, got.IsRegistered(student.ID))
	_, err = s.Unregister(ctx, student, id)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	_, err = s.Delete(ctx, staff, id)
	require.NoError(t, err)
	_, err = s.Register(ctx, student, id)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestListingWindows(t *testing.T) {
	s := session.NewService(memstore.New(), nil, time.UTC)
	ctx := context.Background()
	for _, offset := range []int{-10, -2, -1, 0, 3, 7} {
		_, err := s.Create(ctx, staff, input(day(offset)))
		require.NoError(t, err)
	}
	inactive, err := s.Create(ctx, staff, input(day(1)))
	require.NoError(t, err)
	_, err = s.Delete(ctx, staff, inactive.Session.ID)
	require.NoError(t, err)

	upcoming, err := s.Upcoming(ctx, 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, day(0), upcoming[0].Date.Format(time.DateOnly))
	assert.Equal(t, day(7), upcoming[2].Date.Format(time.DateOnly))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, day(-1), recent[0].Date.Format(time.DateOnly))
	assert.Equal(t, day(-2), recent[1].Date.Format(time.DateOnly))

	all, meta, err := s.List(ctx, session.Filter{}, paging.Page{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 6, meta.Total)
	assert.Equal(t, 2, meta.Pages)

	from, _ := session.ParseDate(day(-2), time.UTC)
	to, _ := session.ParseDate(day(1), time.UTC)
	ranged, err := s.InRange(ctx, &from, &to)
	require.NoError(t, err)
	assert.Len(t, ranged, 4)
}

func TestSameDayUsesClubLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	sess := session.Session{Date: time.Date(2026, 3, 10, 0, 0, 0, 0, tokyo), StartTime: "09:30"}

	assert.True(t, sess.SameDay(time.Date(2026, 3, 9, 16, 0, 0, 0, time.UTC), tokyo))
	assert.False(t, sess.SameDay(time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC), tokyo))

	start, err := sess.StartsAt(tokyo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC), start.UTC())
}

func TestParseClock(t *testing.T) {
	h, m, err := session.ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)
	for _, bad := range []string{"24:00", "7:30", "12:60", "noon", ""} {
		_, _, err := session.ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
