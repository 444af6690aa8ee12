package mongostore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/user"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	Role         string             `bson:"role"`
	Batch        string             `bson:"batch,omitempty"`
	IsActive     bool               `bson:"isActive"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func toUserDoc(u user.User) userDoc {
	d := userDoc{
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Batch:        u.Batch,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if id, ok := oid(u.ID); ok {
		d.ID = id
	}
	return d
}

func (d userDoc) domain() user.User {
	return user.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         user.Role(d.Role),
		Batch:        d.Batch,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	doc := toUserDoc(u)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
		}
		return user.User{}, err
	}
	return doc.domain(), nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	id, ok := oid(u.ID)
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	doc := toUserDoc(u)
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, apperr.Conflict("email %s is already registered", u.Email)
		}
		return user.User{}, err
	}
	if res.MatchedCount == 0 {
		return user.User{}, apperr.NotFound("user not found")
	}
	return doc.domain(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	key, ok := oid(id)
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	return s.findUser(ctx, bson.M{"_id": key})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (user.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return user.User{}, notFound(err, "user")
	}
	return doc.domain(), nil
}

// userFilter translates f into a query document.
func userFilter(f user.Filter) bson.M {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = string(f.Role)
	}
	if f.Batch != "" {
		filter["batch"] = f.Batch
	}
	if f.Active != nil {
		filter["isActive"] = *f.Active
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": rx}, bson.M{"email": rx}}
	}
	return filter
}

func (s *Store) ListUsers(ctx context.Context, f user.Filter, p paging.Page) ([]user.User, int, error) {
	filter := userFilter(f)
	total, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(p.Skip())).
		SetLimit(int64(p.Limit))
	users, err := s.findUsers(ctx, filter, opts)
	return users, int(total), err
}

func (s *Store) findUsers(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]user.User, error) {
	cur, err := s.users.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]user.User, len(docs))
	for i, d := range docs {
		out[i] = d.domain()
	}
	return out, nil
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	keys := oids(ids)
	if len(keys) == 0 {
		return nil, nil
	}
	return s.findUsers(ctx, bson.M{"_id": bson.M{"$in": keys}})
}

func (s *Store) ListActiveStudents(ctx context.Context) ([]user.User, error) {
	return s.findUsers(ctx,
		bson.M{"role": string(user.RoleStudent), "isActive": true},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[user.Role]int, error) {
	cur, err := s.users.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true}}},
		{{Key: "$group", Value: bson.M{"_id": bson.M{"role": "$role"}, "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []countResult
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[user.Role]int, len(rows))
	for _, r := range rows {
		out[user.Role(r.Key.Role)] = r.Count
	}
	return out, nil
}
