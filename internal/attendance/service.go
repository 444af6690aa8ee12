package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"clubhub/internal/apperr"
	"clubhub/internal/logging"
	"clubhub/internal/metrics"
	"clubhub/internal/queue"
	"clubhub/internal/session"
	"clubhub/internal/user"
)

// Sessions looks up sessions for the attendance service.
type Sessions interface {
	Get(ctx context.Context, id string) (session.Session, error)
	InRange(ctx context.Context, from, to *time.Time) ([]session.Session, error)
}

// Users looks up accounts for the attendance service.
type Users interface {
	Get(ctx context.Context, id string) (user.User, error)
	ListActiveStudents(ctx context.Context) ([]user.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]user.User, error)
}

// Cache stores analytics results between writes.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// Options tunes a Service. Zero values pick the defaults.
type Options struct {
	Location    *time.Location
	Grace       time.Duration
	Concurrency int
	Publisher   queue.Publisher
	Cache       Cache
	CacheTTL    time.Duration
	Now         func() time.Time
}

const (
	DefaultGrace       = 15 * time.Minute
	DefaultConcurrency = 8
)

// Service implements attendance marking, check-in and summaries.
type Service struct {
	repo     Repository
	sessions Sessions
	users    Users

	loc         *time.Location
	grace       time.Duration
	concurrency int
	publisher   queue.Publisher
	cache       Cache
	cacheTTL    time.Duration
	now         func() time.Time
}

// NewService wires the attendance service.
func NewService(repo Repository, sessions Sessions, users Users, opts Options) *Service {
	s := &Service{
		repo:        repo,
		sessions:    sessions,
		users:       users,
		loc:         opts.Location,
		grace:       opts.Grace,
		concurrency: opts.Concurrency,
		publisher:   opts.Publisher,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		now:         opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.grace == 0 {
		s.grace = DefaultGrace
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// MarkInput is a manual mark request.
type MarkInput struct {
	SessionID string `json:"sessionId" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
	Status    Status `json:"status" binding:"required,attstatus"`
	Notes     string `json:"notes" binding:"max=500"`
}

// Mark sets the status of a user at a session, creating the record if needed.
// The first check-in time is kept when the user is re-marked present or late.
func (s *Service) Mark(ctx context.Context, actor user.Actor, in MarkInput) (Record, error) {
	if !actor.Role.Staff() {
		return Record{}, apperr.Forbidden("only teachers and admins can mark attendance")
	}
	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return Record{}, err
	}
	return s.mark(ctx, actor, sess.ID, in.UserID, in.Status, in.Notes)
}

func (s *Service) mark(ctx context.Context, actor user.Actor, sessionID, userID string, status Status, notes string) (Record, error) {
	if !status.Valid() {
		return Record{}, apperr.Validation("unknown status %q", status)
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return Record{}, apperr.Validation("notes must be at most %d characters", MaxNotesLength)
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return Record{}, err
	}

	now := s.now().UTC()
	change := Change{
		SessionID: sessionID,
		UserID:    userID,
		Status:    status,
		Method:    MethodManual,
		MarkedBy:  &actor.ID,
		Notes:     &notes,
		Policy:    KeepCheckIn,
		At:        now,
	}
	if status.Attended() {
		change.CheckIn = &now
	}
	rec, err := s.repo.ApplyChange(ctx, change)
	if err != nil {
		return Record{}, err
	}
	s.changed(ctx, actor, rec, ActionMark)
	return rec, nil
}

// BulkEntry is one row of a bulk mark request.
type BulkEntry struct {
	UserID string `json:"userId" binding:"required"`
	Status Status `json:"status" binding:"required,attstatus"`
	Notes  string `json:"notes" binding:"max=500"`
}

// BulkItemResult reports the outcome of one BulkEntry.
type BulkItemResult struct {
	UserID  string `json:"userId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkResult is returned by BulkMark.
type BulkResult struct {
	Results []BulkItemResult `json:"results"`
	Summary Summary          `json:"summary"`
}

// BulkMark marks every entry concurrently. A failing entry is reported in its
// result and does not stop the others. The returned summary reflects all
// successful writes.
func (s *Service) BulkMark(ctx context.Context, actor user.Actor, sessionID string, entries []BulkEntry) (BulkResult, error) {
	if !actor.Role.Staff() {
		return BulkResult{}, apperr.Forbidden("only teachers and admins can mark attendance")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return BulkResult{}, err
	}

	results := make([]BulkItemResult, len(entries))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = BulkItemResult{UserID: entry.UserID, Success: true}
			if _, err := s.mark(ctx, actor, sess.ID, entry.UserID, entry.Status, entry.Notes); err != nil {
				metrics.BulkEntryFailures.Inc()
				results[i].Success = false
				results[i].Error = publicMessage(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary, err := s.SessionSummary(ctx, sess.ID)
	if err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Results: results, Summary: summary}, nil
}

// SelfCheckIn records the requester's own attendance. It is only allowed on
// the session's calendar day; arriving after the start time plus the grace
// period counts as late. Repeating a check-in is rejected only when the
// current status is present.
func (s *Service) SelfCheckIn(ctx context.Context, actor user.Actor, sessionID string) (Record, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if !sess.IsActive {
		metrics.CheckIns.WithLabelValues("rejected").Inc()
		return Record{}, apperr.InvalidState("session is no longer active")
	}
	now := s.now()
	if !sess.SameDay(now, s.loc) {
		metrics.CheckIns.WithLabelValues("rejected").Inc()
		return Record{}, apperr.InvalidState("check-in is only allowed on the day of the session")
	}

	existing, err := s.repo.FindRecord(ctx, sess.ID, actor.ID)
	switch {
	case err == nil && existing.Status == StatusPresent:
		metrics.CheckIns.WithLabelValues("rejected").Inc()
		return Record{}, apperr.Conflict("already checked in to this session")
	case err != nil && !apperr.Is(err, apperr.KindNotFound):
		return Record{}, err
	}

	status, err := s.arrivalStatus(sess, now)
	if err != nil {
		return Record{}, apperr.Internal(err, "session has an invalid start time")
	}
	at := now.UTC()
	rec, err := s.repo.ApplyChange(ctx, Change{
		SessionID: sess.ID,
		UserID:    actor.ID,
		Status:    status,
		Method:    MethodSelf,
		CheckIn:   &at,
		Policy:    OverwriteCheckIn,
		At:        at,
	})
	if err != nil {
		return Record{}, err
	}
	metrics.CheckIns.WithLabelValues(string(status)).Inc()
	s.changed(ctx, actor, rec, ActionCheckIn)
	return rec, nil
}

// arrivalStatus is present up to and including start+grace, late afterwards.
func (s *Service) arrivalStatus(sess session.Session, at time.Time) (Status, error) {
	start, err := sess.StartsAt(s.loc)
	if err != nil {
		return "", err
	}
	if at.After(start.Add(s.grace)) {
		return StatusLate, nil
	}
	return StatusPresent, nil
}

// CheckOut records when the requester left a session they checked in to.
func (s *Service) CheckOut(ctx context.Context, actor user.Actor, sessionID string) (Record, error) {
	rec, err := s.repo.FindRecord(ctx, sessionID, actor.ID)
	if apperr.Is(err, apperr.KindNotFound) {
		return Record{}, apperr.InvalidState("not checked in to this session")
	}
	if err != nil {
		return Record{}, err
	}
	if !rec.Status.Attended() {
		return Record{}, apperr.InvalidState("not checked in to this session")
	}
	if rec.CheckOutTime != nil {
		return Record{}, apperr.Conflict("already checked out of this session")
	}
	rec, err = s.repo.SetCheckOut(ctx, sessionID, actor.ID, s.now().UTC())
	if err != nil {
		return Record{}, err
	}
	s.changed(ctx, actor, rec, ActionCheckOut)
	return rec, nil
}

// SeedSession creates one absent record per active student. It implements
// session.Seeder. Seeded rows are counted but publish no events.
func (s *Service) SeedSession(ctx context.Context, sessionID, markedBy string) (int, error) {
	students, err := s.users.ListActiveStudents(ctx)
	if err != nil {
		return 0, err
	}
	if len(students) == 0 {
		return 0, nil
	}
	ids := make([]string, len(students))
	for i, u := range students {
		ids[i] = u.ID
	}
	n, err := s.repo.SeedAbsent(ctx, sessionID, ids, markedBy, s.now().UTC())
	if err != nil {
		return n, fmt.Errorf("seed attendance for session %s: %w", sessionID, err)
	}
	metrics.SeededRecords.Add(float64(n))
	s.invalidate(ctx)
	return n, nil
}

// Attendee is a brief view of the user behind a record.
type Attendee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Batch string `json:"batch,omitempty"`
}

// Entry is a record joined with its user.
type Entry struct {
	Record
	User *Attendee `json:"userInfo,omitempty"`
}

// SessionView is the attendance sheet of a session.
type SessionView struct {
	Session    session.Session `json:"session"`
	Attendance []Entry         `json:"attendance"`
	Summary    Summary         `json:"summary"`
}

// SessionAttendance returns every record of a session with user details.
func (s *Service) SessionAttendance(ctx context.Context, sessionID string) (SessionView, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	entries, err := s.entries(ctx, sess.ID)
	if err != nil {
		return SessionView{}, err
	}
	summary, err := s.SessionSummary(ctx, sess.ID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{Session: sess, Attendance: entries, Summary: summary}, nil
}

func (s *Service) entries(ctx context.Context, sessionID string) ([]Entry, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.UserID
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{Record: r}
		if u, ok := byID[r.UserID]; ok {
			entries[i].User = &Attendee{ID: u.ID, Name: u.Name, Email: u.Email, Batch: u.Batch}
		}
	}
	return entries, nil
}

// UserView is the attendance history of a user.
type UserView struct {
	Attendance []Record    `json:"attendance"`
	Summary    UserSummary `json:"summary"`
}

// UserAttendance returns a user's records and summary. Users may read their
// own history; staff may read anyone's.
func (s *Service) UserAttendance(ctx context.Context, actor user.Actor, userID string) (UserView, error) {
	if actor.ID != userID && !actor.Role.Staff() {
		return UserView{}, apperr.Forbidden("cannot view another user's attendance")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return UserView{}, err
	}
	records, err := s.repo.ListByUser(ctx, userID, 0)
	if err != nil {
		return UserView{}, err
	}
	summary, err := s.UserSummary(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	return UserView{Attendance: records, Summary: summary}, nil
}

// RecentForUser returns the user's latest records, newest first.
func (s *Service) RecentForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// SessionSummary counts a session's records by status.
func (s *Service) SessionSummary(ctx context.Context, sessionID string) (Summary, error) {
	counts, err := s.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(counts), nil
}

// UserSummary counts a user's records across sessions and adds the
// participation percentage, where late counts as attended.
func (s *Service) UserSummary(ctx context.Context, userID string) (UserSummary, error) {
	counts, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	return Summarize(counts).WithPercentage(), nil
}

// Analytics aggregates attendance over the sessions dated within [from, to].
// Either bound may be nil.
func (s *Service) Analytics(ctx context.Context, from, to *time.Time) (Analytics, error) {
	if from != nil && to != nil && to.Before(*from) {
		return Analytics{}, apperr.Validation("endDate must not be before startDate")
	}
	key := analyticsKey(from, to)
	if s.cache != nil {
		var cached Analytics
		hit, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			metrics.AnalyticsCache.WithLabelValues("error").Inc()
			logging.Ctx(ctx).Warn().Err(err).Msg("analytics cache read failed")
		case hit:
			metrics.AnalyticsCache.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.AnalyticsCache.WithLabelValues("miss").Inc()
		}
	}

	sessions, err := s.sessions.InRange(ctx, from, to)
	if err != nil {
		return Analytics{}, err
	}
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	grouped := map[string]Counts{}
	if len(ids) > 0 {
		if grouped, err = s.repo.CountBySessions(ctx, ids); err != nil {
			return Analytics{}, err
		}
	}

	out := Analytics{From: from, To: to, TotalSessions: len(sessions), BySession: make([]SessionBreakdown, 0, len(sessions))}
	for _, sess := range sessions {
		sum := Summarize(grouped[sess.ID])
		out.Overall = out.Overall.Add(sum)
		out.BySession = append(out.BySession, SessionBreakdown{SessionID: sess.ID, Title: sess.Title, Date: sess.Date, Summary: sum})
	}
	out.TotalRecords = out.Overall.Total
	out.AttendanceRate = out.Overall.Rate()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out, s.cacheTTL); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("analytics cache write failed")
		}
	}
	return out, nil
}

func analyticsKey(from, to *time.Time) string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return "analytics:" + bound(from) + ":" + bound(to)
}

// History returns the audit trail of a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]AuditEntry, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, sessionID)
}

// RecordAudit stores an event delivered by the queue.
func (s *Service) RecordAudit(ctx context.Context, e Event) error {
	return s.repo.AppendAudit(ctx, e.AuditEntry())
}

// changed runs the side effects of a successful write. Failures are logged.
func (s *Service) changed(ctx context.Context, actor user.Actor, rec Record, action Action) {
	metrics.AttendanceMarks.WithLabelValues(string(action), string(rec.Method), string(rec.Status)).Inc()
	s.invalidate(ctx)
	if s.publisher == nil {
		return
	}
	msg, err := Event{
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		Status:    rec.Status,
		Method:    rec.Method,
		Action:    action,
		ActorID:   actor.ID,
		At:        rec.UpdatedAt,
	}.Message()
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		metrics.QueuePublishFailures.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("session", rec.SessionID).Str("user", rec.UserID).Msg("attendance event not published")
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("analytics cache invalidation failed")
	}
}

func publicMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return ae.Message
	}
	return "internal error"
}
