// Package mongostore persists users, sessions and attendance in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clubhub/internal/apperr"
	"clubhub/internal/logging"
)

const (
	usersCollection      = "users"
	sessionsCollection   = "sessions"
	attendanceCollection = "attendances"
	auditCollection      = "attendance_audit"
)

// Store implements the user, session and attendance repositories.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	users      *mongo.Collection
	sessions   *mongo.Collection
	attendance *mongo.Collection
	audit      *mongo.Collection
}

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetMaxPoolSize(20))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:     client,
		db:         db,
		users:      db.Collection(usersCollection),
		sessions:   db.Collection(sessionsCollection),
		attendance: db.Collection(attendanceCollection),
		audit:      db.Collection(auditCollection),
	}
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// (user, session) index is what makes concurrent upserts safe.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range indexModels() {
		names, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
		logging.Info().Str("collection", coll).Strs("indexes", names).Msg("indexes ensured")
	}
	return nil
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "isActive", Value: 1}}},
		},
		sessionsCollection: {
			{Keys: bson.D{{Key: "date", Value: -1}, {Key: "startTime", Value: -1}}},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "type", Value: 1}}},
		},
		attendanceCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "session", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "session", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		auditCollection: {
			{Keys: bson.D{{Key: "session", Value: 1}, {Key: "at", Value: 1}}},
		},
	}
}

// oid parses a hex id. Malformed ids cannot match any document, so callers
// report them as not found.
func oid(id string) (primitive.ObjectID, bool) {
	v, err := primitive.ObjectIDFromHex(id)
	return v, err == nil
}

func oids(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if v, ok := oid(id); ok {
			out = append(out, v)
		}
	}
	return out
}

func hexes(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func optionalOID(id string) *primitive.ObjectID {
	if v, ok := oid(id); ok {
		return &v
	}
	return nil
}

func optionalHex(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

// notFound maps mongo.ErrNoDocuments to an apperr NotFound error.
func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("%s not found", what)
	}
	return err
}

// countResult is the output row of a $group by status.
type countResult struct {
	Key   groupKey `bson:"_id"`
	Count int      `bson:"count"`
}

type groupKey struct {
	Session primitive.ObjectID `bson:"session,omitempty"`
	Status  string             `bson:"status"`
	Role    string             `bson:"role,omitempty"`
}
