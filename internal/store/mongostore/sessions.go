package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/session"
)

type sessionDoc struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty"`
	Title           string               `bson:"title"`
	Description     string               `bson:"description,omitempty"`
	Date            time.Time            `bson:"date"`
	StartTime       string               `bson:"startTime"`
	EndTime         string               `bson:"endTime"`
	Location        string               `bson:"location,omitempty"`
	Type            string               `bson:"type"`
	CreatedBy       *primitive.ObjectID  `bson:"createdBy,omitempty"`
	Agenda          *primitive.ObjectID  `bson:"agenda,omitempty"`
	MaxCapacity     int                  `bson:"maxCapacity"`
	RegisteredUsers []primitive.ObjectID `bson:"registeredUsers"`
	IsActive        bool                 `bson:"isActive"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func toSessionDoc(s session.Session) sessionDoc {
	d := sessionDoc{
		Title:           s.Title,
		Description:     s.Description,
		Date:            s.Date,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Location:        s.Location,
		Type:            string(s.Type),
		CreatedBy:       optionalOID(s.CreatedBy),
		Agenda:          optionalOID(s.AgendaID),
		MaxCapacity:     s.MaxCapacity,
		RegisteredUsers: oids(s.RegisteredUsers),
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if id, ok := oid(s.ID); ok {
		d.ID = id
	}
	return d
}

func (d sessionDoc) domain() session.Session {
	return session.Session{
		ID:              d.ID.Hex(),
		Title:           d.Title,
		Description:     d.Description,
		Date:            d.Date,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		Location:        d.Location,
		Type:            session.Type(d.Type),
		CreatedBy:       optionalHex(d.CreatedBy),
		AgendaID:        optionalHex(d.Agenda),
		MaxCapacity:     d.MaxCapacity,
		RegisteredUsers: hexes(d.RegisteredUsers),
		IsActive:        d.IsActive,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	doc := toSessionDoc(sess)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return session.Session{}, err
	}
	return doc.domain(), nil
}

func (s *Store) UpdateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	id, ok := oid(sess.ID)
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	doc := toSessionDoc(sess)
	res, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return session.Session{}, err
	}
	if res.MatchedCount == 0 {
		return session.Session{}, apperr.NotFound("session not found")
	}
	return doc.domain(), nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	key, ok := oid(id)
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	var doc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		return session.Session{}, notFound(err, "session")
	}
	return doc.domain(), nil
}

// sessionFilter translates f into a query document.
func sessionFilter(f session.Filter) bson.M {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	date := bson.M{}
	if f.From != nil {
		date["$gte"] = *f.From
	}
	if f.To != nil {
		date["$lte"] = *f.To
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

func sessionSort(ascending bool) bson.D {
	dir := -1
	if ascending {
		dir = 1
	}
	return bson.D{{Key: "date", Value: dir}, {Key: "startTime", Value: dir}}
}

func (s *Store) ListSessions(ctx context.Context, f session.Filter, p paging.Page) ([]session.Session, int, error) {
	filter := sessionFilter(f)
	total, err := s.sessions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(sessionSort(f.Ascending)).SetSkip(int64(p.Skip()))
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	cur, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]session.Session, len(docs))
	for i, d := range docs {
		out[i] = d.domain()
	}
	return out, int(total), nil
}

// registrationFilter matches the session only while userID can still join.
func registrationFilter(sessionID, userID primitive.ObjectID) bson.M {
	return bson.M{
		"_id":             sessionID,
		"isActive":        true,
		"registeredUsers": bson.M{"$ne": userID},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$size": bson.M{"$ifNull": bson.A{"$registeredUsers", bson.A{}}}},
			"$maxCapacity",
		}},
	}
}

func (s *Store) AddRegistration(ctx context.Context, sessionID, userID string) (session.Session, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	uid, ok := oid(userID)
	if !ok {
		return session.Session{}, apperr.NotFound("user not found")
	}
	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx,
		registrationFilter(sid, uid),
		bson.M{"$push": bson.M{"registeredUsers": uid}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.domain(), nil
	}
	if _, getErr := s.GetSession(ctx, sessionID); getErr != nil {
		return session.Session{}, getErr
	}
	if apperr.Is(notFound(err, "session"), apperr.KindNotFound) {
		return session.Session{}, apperr.Conflict("session is full or already joined")
	}
	return session.Session{}, err
}

func (s *Store) RemoveRegistration(ctx context.Context, sessionID, userID string) (session.Session, error) {
	sid, ok := oid(sessionID)
	if !ok {
		return session.Session{}, apperr.NotFound("session not found")
	}
	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx,
		bson.M{"_id": sid},
		bson.M{"$pull": bson.M{"registeredUsers": optionalOID(userID)}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return session.Session{}, notFound(err, "session")
	}
	return doc.domain(), nil
}
