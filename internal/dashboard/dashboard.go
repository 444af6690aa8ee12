// Package dashboard composes the per-role landing view from sessions and
// attendance.
package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clubhub/internal/attendance"
	"clubhub/internal/session"
	"clubhub/internal/user"
)

const (
	upcomingLimit = 5
	recentLimit   = 5
	analyticsDays = 30
)

type Sessions interface {
	Upcoming(ctx context.Context, limit int) ([]session.Session, error)
	Recent(ctx context.Context, limit int) ([]session.Session, error)
}

type Attendance interface {
	UserSummary(ctx context.Context, userID string) (attendance.UserSummary, error)
	RecentForUser(ctx context.Context, userID string, limit int) ([]attendance.Record, error)
	SessionSummary(ctx context.Context, sessionID string) (attendance.Summary, error)
	Analytics(ctx context.Context, from, to *time.Time) (attendance.Analytics, error)
}

type Users interface {
	CountByRole(ctx context.Context) (map[user.Role]int, error)
}

// SessionStat is a past session with its attendance summary.
type SessionStat struct {
	Session session.Session    `json:"session"`
	Summary attendance.Summary `json:"summary"`
}

// View is the dashboard payload. Fields a role does not see stay empty.
type View struct {
	Role             user.Role               `json:"role"`
	Upcoming         []session.Session       `json:"upcomingSessions"`
	Summary          *attendance.UserSummary `json:"summary,omitempty"`
	RecentAttendance []attendance.Record     `json:"recentAttendance,omitempty"`
	RecentSessions   []SessionStat           `json:"recentSessions,omitempty"`
	Analytics        *attendance.Analytics   `json:"analytics,omitempty"`
	UserCounts       map[user.Role]int       `json:"userCounts,omitempty"`
}

type Service struct {
	sessions   Sessions
	attendance Attendance
	users      Users
	now        func() time.Time
}

func NewService(sessions Sessions, att Attendance, users Users) *Service {
	return &Service{sessions: sessions, attendance: att, users: users, now: time.Now}
}

// Get loads the view for actor. Independent parts load concurrently.
func (s *Service) Get(ctx context.Context, actor user.Actor) (View, error) {
	v := View{Role: actor.Role}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		upcoming, err := s.sessions.Upcoming(ctx, upcomingLimit)
		v.Upcoming = upcoming
		return err
	})

	if !actor.Role.Staff() {
		g.Go(func() error {
			sum, err := s.attendance.UserSummary(ctx, actor.ID)
			v.Summary = &sum
			return err
		})
		g.Go(func() error {
			recent, err := s.attendance.RecentForUser(ctx, actor.ID, recentLimit)
			v.RecentAttendance = recent
			return err
		})
		return finish(g, &v)
	}

	g.Go(func() error {
		stats, err := s.recentSessions(ctx)
		v.RecentSessions = stats
		return err
	})
	g.Go(func() error {
		to := s.now()
		from := to.AddDate(0, 0, -analyticsDays)
		a, err := s.attendance.Analytics(ctx, &from, &to)
		v.Analytics = &a
		return err
	})
	if actor.Role == user.RoleAdmin {
		g.Go(func() error {
			counts, err := s.users.CountByRole(ctx)
			v.UserCounts = counts
			return err
		})
	}
	return finish(g, &v)
}

// finish waits for the loaders writing into v.
func finish(g *errgroup.Group, v *View) (View, error) {
	if err := g.Wait(); err != nil {
		return View{}, err
	}
	if v.Upcoming == nil {
		v.Upcoming = []session.Session{}
	}
	return *v, nil
}

func (s *Service) recentSessions(ctx context.Context) ([]SessionStat, error) {
	recent, err := s.sessions.Recent(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	stats := make([]SessionStat, len(recent))
	for i, sess := range recent {
		sum, err := s.attendance.SessionSummary(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		stats[i] = SessionStat{Session: sess, Summary: sum}
	}
	return stats, nil
}
