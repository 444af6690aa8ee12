package session

import (
	"context"
	"fmt"
	"time"

	"clubhub/internal/paging"
)

// Type categorises a session.
type Type string

const (
	TypeWorkshop Type = "workshop"
	TypeLecture  Type = "lecture"
	TypeLab      Type = "lab"
	TypeSeminar  Type = "seminar"
	TypeMeeting  Type = "meeting"
	TypeOther    Type = "other"
)

// Types lists every session type.
var Types = []Type{TypeWorkshop, TypeLecture, TypeLab, TypeSeminar, TypeMeeting, TypeOther}

// Valid reports whether t is a known session type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

const DefaultMaxCapacity = 100

// Session is a scheduled club meeting.
type Session struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	Location        string    `json:"location,omitempty"`
	Type            Type      `json:"type"`
	CreatedBy       string    `json:"createdBy"`
	AgendaID        string    `json:"agenda,omitempty"`
	MaxCapacity     int       `json:"maxCapacity"`
	RegisteredUsers []string  `json:"registeredUsers"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SameDay reports whether t falls on the session's calendar day in loc.
func (s Session) SameDay(t time.Time, loc *time.Location) bool {
	sy, sm, sd := s.Date.In(loc).Date()
	ty, tm, td := t.In(loc).Date()
	return sy == ty && sm == tm && sd == td
}

// StartsAt anchors StartTime to the session's calendar day in loc.
func (s Session) StartsAt(loc *time.Location) (time.Time, error) {
	h, m, err := ParseClock(s.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := s.Date.In(loc).Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}

// IsRegistered reports whether userID is on the registration list.
func (s Session) IsRegistered(userID string) bool {
	for _, id := range s.RegisteredUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil || len(v) != 5 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseDate parses a session date, either "YYYY-MM-DD" (midnight in loc) or
// RFC 3339.
func ParseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", v)
	}
	return t, nil
}

// Filter narrows session listings.
type Filter struct {
	Type            Type
	From            *time.Time
	To              *time.Time
	IncludeInactive bool
	Ascending       bool
}

// Repository persists sessions.
type Repository interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	UpdateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, f Filter, p paging.Page) ([]Session, int, error)
	// AddRegistration appends userID while the session is active, below
	// capacity and the user is not yet registered. Otherwise it returns an
	// apperr Conflict.
	AddRegistration(ctx context.Context, sessionID, userID string) (Session, error)
	RemoveRegistration(ctx context.Context, sessionID, userID string) (Session, error)
}

// Seeder creates the initial attendance rows of a new session.
type Seeder interface {
	SeedSession(ctx context.Context, sessionID, markedBy string) (int, error)
}
