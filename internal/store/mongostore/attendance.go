package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
)

type recordDoc struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty"`
	Session      primitive.ObjectID  `bson:"session"`
	User         primitive.ObjectID  `bson:"user"`
	Status       string              `bson:"status"`
	CheckInTime  *time.Time          `bson:"checkInTime,omitempty"`
	CheckOutTime *time.Time          `bson:"checkOutTime,omitempty"`
	MarkedBy     *primitive.ObjectID `bson:"markedBy,omitempty"`
	Notes        string              `bson:"notes,omitempty"`
	Method       string              `bson:"method"`
	CreatedAt    time.Time           `bson:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt"`
}

func (d recordDoc) domain() attendance.Record {
	return attendance.Record{
		ID:           d.ID.Hex(),
		SessionID:    d.Session.Hex(),
		UserID:       d.User.Hex(),
		Status:       attendance.Status(d.Status),
		CheckInTime:  d.CheckInTime,
		CheckOutTime: d.CheckOutTime,
		MarkedBy:     optionalHex(d.MarkedBy),
		Notes:        d.Notes,
		Method:       attendance.Method(d.Method),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type auditDoc struct {
	ID      primitive.ObjectID  `bson:"_id,omitempty"`
	Session primitive.ObjectID  `bson:"session"`
	User    primitive.ObjectID  `bson:"user"`
	Status  string              `bson:"status"`
	Method  string              `bson:"method"`
	Action  string              `bson:"action,omitempty"`
	Actor   *primitive.ObjectID `bson:"actor,omitempty"`
	At      time.Time           `bson:"at"`
}

func (d auditDoc) domain() attendance.AuditEntry {
	return attendance.AuditEntry{
		ID:        d.ID.Hex(),
		SessionID: d.Session.Hex(),
		UserID:    d.User.Hex(),
		Status:    attendance.Status(d.Status),
		Method:    attendance.Method(d.Method),
		Action:    auditAction(d.Action),
		ActorID:   optionalHex(d.Actor),
		At:        d.At,
	}
}

// auditAction treats entries written before actions were recorded as marks.
func auditAction(s string) attendance.Action {
	if s == "" {
		return attendance.ActionMark
	}
	return attendance.Action(s)
}

func pair(sessionID, userID string) (bson.M, bool) {
	sid, ok := oid(sessionID)
	if !ok {
		return nil, false
	}
	uid, ok := oid(userID)
	if !ok {
		return nil, false
	}
	return bson.M{"session": sid, "user": uid}, true
}

func (s *Store) FindRecord(ctx context.Context, sessionID, userID string) (attendance.Record, error) {
	filter, ok := pair(sessionID, userID)
	if !ok {
		return attendance.Record{}, apperr.NotFound("attendance record not found")
	}
	var doc recordDoc
	if err := s.attendance.FindOne(ctx, filter).Decode(&doc); err != nil {
		return attendance.Record{}, notFound(err, "attendance record")
	}
	return doc.domain(), nil
}

// changeUpdate builds the aggregation-pipeline update applied by ApplyChange.
// $ifNull keeps the stored check-in time and creation time when present.
// Free text goes through $literal so a leading '$' is not read as a path.
func changeUpdate(c attendance.Change) bson.A {
	set := bson.M{
		"status":    string(c.Status),
		"method":    string(c.Method),
		"updatedAt": c.At,
		"createdAt": bson.M{"$ifNull": bson.A{"$createdAt", c.At}},
	}
	if c.MarkedBy != nil {
		if by := optionalOID(*c.MarkedBy); by != nil {
			set["markedBy"] = *by
		}
	}
	if c.Notes != nil {
		set["notes"] = bson.M{"$literal": *c.Notes}
	}
	if c.CheckIn != nil {
		if c.Policy == attendance.OverwriteCheckIn {
			set["checkInTime"] = *c.CheckIn
		} else {
			set["checkInTime"] = bson.M{"$ifNull": bson.A{"$checkInTime", *c.CheckIn}}
		}
	}
	return bson.A{bson.M{"$set": set}}
}

// ApplyChange upserts the (session, user) record in one round trip. Two
// concurrent first writes race on the unique index; the loser retries as an
// update.
func (s *Store) ApplyChange(ctx context.Context, c attendance.Change) (attendance.Record, error) {
	filter, ok := pair(c.SessionID, c.UserID)
	if !ok {
		return attendance.Record{}, apperr.NotFound("session or user not found")
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc recordDoc
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.attendance.FindOneAndUpdate(ctx, filter, changeUpdate(c), opts).Decode(&doc)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return attendance.Record{}, err
	}
	return doc.domain(), nil
}

func (s *Store) SetCheckOut(ctx context.Context, sessionID, userID string, at time.Time) (attendance.Record, error) {
	filter, ok := pair(sessionID, userID)
	if !ok {
		return attendance.Record{}, apperr.NotFound("attendance record not found")
	}
	var doc recordDoc
	err := s.attendance.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"checkOutTime": at, "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return attendance.Record{}, notFound(err, "attendance record")
	}
	return doc.domain(), nil
}

// SeedAbsent inserts unordered so existing pairs fail on the unique index
// without stopping the rest of the batch.
func (s *Store) SeedAbsent(ctx context.Context, sessionID string, userIDs []string, markedBy string, at time.Time) (int, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return 0, apperr.NotFound("session not found")
	}
	by := optionalOID(markedBy)
	docs := make([]any, 0, len(userIDs))
	for _, uid := range oids(userIDs) {
		docs = append(docs, recordDoc{
			ID:        primitive.NewObjectID(),
			Session:   sid,
			User:      uid,
			Status:    string(attendance.StatusAbsent),
			MarkedBy:  by,
			Method:    string(attendance.MethodAuto),
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	_, err := s.attendance.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, err
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return len(docs) - len(bwe.WriteErrors), err
		}
	}
	return len(docs) - len(bwe.WriteErrors), nil
}

func (s *Store) findRecords(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]attendance.Record, error) {
	cur, err := s.attendance.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]attendance.Record, len(docs))
	for i, d := range docs {
		out[i] = d.domain()
	}
	return out, nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return nil, nil
	}
	return s.findRecords(ctx, bson.M{"session": sid},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]attendance.Record, error) {
	uid, ok := oid(userID)
	if !ok {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findRecords(ctx, bson.M{"user": uid}, opts)
}

// countPipeline groups the matched records by status, and by session too
// when perSession is set.
func countPipeline(match bson.M, perSession bool) mongo.Pipeline {
	key := bson.M{"status": "$status"}
	if perSession {
		key["session"] = "$session"
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": key, "count": bson.M{"$sum": 1}}}},
	}
}

func (s *Store) countRecords(ctx context.Context, match bson.M, perSession bool) ([]countResult, error) {
	cur, err := s.attendance.Aggregate(ctx, countPipeline(match, perSession))
	if err != nil {
		return nil, err
	}
	var rows []countResult
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func foldCounts(rows []countResult) attendance.Counts {
	out := attendance.Counts{}
	for _, r := range rows {
		out[attendance.Status(r.Key.Status)] += r.Count
	}
	return out
}

func (s *Store) CountBySession(ctx context.Context, sessionID string) (attendance.Counts, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return attendance.Counts{}, nil
	}
	rows, err := s.countRecords(ctx, bson.M{"session": sid}, false)
	if err != nil {
		return nil, err
	}
	return foldCounts(rows), nil
}

func (s *Store) CountByUser(ctx context.Context, userID string) (attendance.Counts, error) {
	uid, ok := oid(userID)
	if !ok {
		return attendance.Counts{}, nil
	}
	rows, err := s.countRecords(ctx, bson.M{"user": uid}, false)
	if err != nil {
		return nil, err
	}
	return foldCounts(rows), nil
}

func (s *Store) CountBySessions(ctx context.Context, sessionIDs []string) (map[string]attendance.Counts, error) {
	rows, err := s.countRecords(ctx, bson.M{"session": bson.M{"$in": oids(sessionIDs)}}, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]attendance.Counts)
	for _, r := range rows {
		id := r.Key.Session.Hex()
		if out[id] == nil {
			out[id] = attendance.Counts{}
		}
		out[id][attendance.Status(r.Key.Status)] += r.Count
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, e attendance.AuditEntry) error {
	filter, ok := pair(e.SessionID, e.UserID)
	if !ok {
		return apperr.Validation("audit entry references unknown ids")
	}
	_, err := s.audit.InsertOne(ctx, auditDoc{
		Session: filter["session"].(primitive.ObjectID),
		User:    filter["user"].(primitive.ObjectID),
		Status:  string(e.Status),
		Method:  string(e.Method),
		Action:  string(e.Action),
		Actor:   optionalOID(e.ActorID),
		At:      e.At,
	})
	return err
}

func (s *Store) ListAudit(ctx context.Context, sessionID string) ([]attendance.AuditEntry, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return nil, nil
	}
	cur, err := s.audit.Find(ctx, bson.M{"session": sid}, options.Find().SetSort(bson.D{{Key: "at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]attendance.AuditEntry, len(docs))
	for i, d := range docs {
		out[i] = d.domain()
	}
	return out, nil
}
