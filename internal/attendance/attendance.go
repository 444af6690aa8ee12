package attendance

import (
	"context"
	"time"
)

// Status is the participation label of a record. Any status may follow any
// other; there is no ordering between them.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Statuses lists every status in export order.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Attended reports whether the status counts towards the participation rate.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// Method records how a record was last written.
type Method string

const (
	MethodManual Method = "manual"
	MethodSelf   Method = "self"
	MethodQR     Method = "qr"
	MethodAuto   Method = "auto"
)

// Action names the kind of write an event or audit entry describes.
type Action string

const (
	ActionMark     Action = "mark"
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"
)

const MaxNotesLength = 500

// Record is the attendance of one user at one session. There is at most one
// record per (SessionID, UserID).
type Record struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session"`
	UserID       string     `json:"user"`
	Status       Status     `json:"status"`
	CheckInTime  *time.Time `json:"checkInTime,omitempty"`
	CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
	MarkedBy     string     `json:"markedBy,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Method       Method     `json:"method"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// CheckInPolicy decides what happens to an existing check-in time.
type CheckInPolicy int

const (
	// KeepCheckIn only sets the check-in time when the record has none.
	KeepCheckIn CheckInPolicy = iota
	// OverwriteCheckIn always replaces the check-in time.
	OverwriteCheckIn
)

// Change is an upsert of the record keyed by (SessionID, UserID). Nil pointer
// fields leave the stored value untouched; on insert they stay empty.
type Change struct {
	SessionID string
	UserID    string
	Status    Status
	Method    Method
	MarkedBy  *string
	Notes     *string
	CheckIn   *time.Time
	Policy    CheckInPolicy
	At        time.Time
}

// AuditEntry is one historical write to a record.
type AuditEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session"`
	UserID    string    `json:"user"`
	Status    Status    `json:"status"`
	Method    Method    `json:"method"`
	Action    Action    `json:"action"`
	ActorID   string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Counts maps a status to its number of records.
type Counts map[Status]int

// Repository persists attendance records. Implementations must enforce the
// (session, user) uniqueness at the storage level.
type Repository interface {
	// FindRecord returns an apperr NotFound error when no record exists.
	FindRecord(ctx context.Context, sessionID, userID string) (Record, error)
	// ApplyChange atomically creates or updates the record for the pair.
	ApplyChange(ctx context.Context, c Change) (Record, error)
	SetCheckOut(ctx context.Context, sessionID, userID string, at time.Time) (Record, error)
	// SeedAbsent inserts absent auto records for the users lacking one and
	// returns how many were created.
	SeedAbsent(ctx context.Context, sessionID string, userIDs []string, markedBy string, at time.Time) (int, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	// ListByUser returns the user's records newest first; limit 0 means all.
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	CountBySession(ctx context.Context, sessionID string) (Counts, error)
	CountByUser(ctx context.Context, userID string) (Counts, error)
	// CountBySessions groups counts per session id.
	CountBySessions(ctx context.Context, sessionIDs []string) (map[string]Counts, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, sessionID string) ([]AuditEntry, error)
}
