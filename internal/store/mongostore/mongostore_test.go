package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clubhub/internal/attendance"
	"clubhub/internal/session"
	"clubhub/internal/user"
)

func setStage(t *testing.T, update bson.A) bson.M {
	t.Helper()
	require.Len(t, update, 1)
	stage, ok := update[0].(bson.M)
	require.True(t, ok)
	set, ok := stage["$set"].(bson.M)
	require.True(t, ok)
	return set
}

func TestChangeUpdateKeepsCheckIn(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	marker := primitive.NewObjectID().Hex()
	notes := "$5 fee paid"
	set := setStage(t, changeUpdate(attendance.Change{
		Status:   attendance.StatusPresent,
		Method:   attendance.MethodManual,
		MarkedBy: &marker,
		Notes:    &notes,
		CheckIn:  &at,
		Policy:   attendance.KeepCheckIn,
		At:       at,
	}))

	assert.Equal(t, "present", set["status"])
	assert.Equal(t, bson.M{"$ifNull": bson.A{"$checkInTime", at}}, set["checkInTime"])
	assert.Equal(t, bson.M{"$ifNull": bson.A{"$createdAt", at}}, set["createdAt"])
	assert.Equal(t, bson.M{"$literal": notes}, set["notes"])
	assert.Equal(t, marker, set["markedBy"].(primitive.ObjectID).Hex())
}

func TestChangeUpdateOverwritesCheckIn(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 20, 0, 0, time.UTC)
	set := setStage(t, changeUpdate(attendance.Change{
		Status:  attendance.StatusLate,
		Method:  attendance.MethodSelf,
		CheckIn: &at,
		Policy:  attendance.OverwriteCheckIn,
		At:      at,
	}))

	assert.Equal(t, at, set["checkInTime"])
	assert.NotContains(t, set, "markedBy")
	assert.NotContains(t, set, "notes")
}

func TestChangeUpdateWithoutCheckIn(t *testing.T) {
	set := setStage(t, changeUpdate(attendance.Change{Status: attendance.StatusAbsent, Method: attendance.MethodManual}))
	assert.NotContains(t, set, "checkInTime")
}

func TestUserFilter(t *testing.T) {
	active := true
	f := userFilter(user.Filter{Role: user.RoleStudent, Batch: "2026", Active: &active, Search: "a.b"})
	assert.Equal(t, "student", f["role"])
	assert.Equal(t, "2026", f["batch"])
	assert.Equal(t, true, f["isActive"])

	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	rx := or[0].(bson.M)["name"].(primitive.Regex)
	assert.Equal(t, `a\.b`, rx.Pattern)
	assert.Equal(t, "i", rx.Options)

	assert.Empty(t, userFilter(user.Filter{}))
}

func TestSessionFilter(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	f := sessionFilter(session.Filter{Type: session.TypeLab, From: &from, To: &to})
	assert.Equal(t, true, f["isActive"])
	assert.Equal(t, "lab", f["type"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, f["date"])

	f = sessionFilter(session.Filter{IncludeInactive: true})
	assert.Empty(t, f)

	assert.Equal(t, bson.D{{Key: "date", Value: 1}, {Key: "startTime", Value: 1}}, sessionSort(true))
	assert.Equal(t, bson.D{{Key: "date", Value: -1}, {Key: "startTime", Value: -1}}, sessionSort(false))
}

func TestCountPipeline(t *testing.T) {
	match := bson.M{"session": primitive.NewObjectID()}
	p := countPipeline(match, true)
	require.Len(t, p, 2)
	assert.Equal(t, "$match", p[0][0].Key)
	assert.Equal(t, match, p[0][0].Value)

	group := p[1][0].Value.(bson.M)
	assert.Equal(t, bson.M{"status": "$status", "session": "$session"}, group["_id"])

	group = countPipeline(match, false)[1][0].Value.(bson.M)
	assert.Equal(t, bson.M{"status": "$status"}, group["_id"])
}

func TestFoldCounts(t *testing.T) {
	c := foldCounts([]countResult{
		{Key: groupKey{Status: "present"}, Count: 3},
		{Key: groupKey{Status: "late"}, Count: 1},
	})
	assert.Equal(t, attendance.Summary{Present: 3, Late: 1, Total: 4}, attendance.Summarize(c))
}

func TestOIDConversion(t *testing.T) {
	_, ok := oid("not-hex")
	assert.False(t, ok)

	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	got := oids([]string{a.Hex(), "bad", b.Hex()})
	assert.Equal(t, []primitive.ObjectID{a, b}, got)
	assert.Equal(t, []string{a.Hex(), b.Hex()}, hexes(got))

	assert.Nil(t, optionalOID(""))
	assert.Equal(t, "", optionalHex(nil))
}

func TestUniqueAttendanceIndex(t *testing.T) {
	models := indexModels()[attendanceCollection]
	require.NotEmpty(t, models)
	assert.Equal(t, bson.D{{Key: "user", Value: 1}, {Key: "session", Value: 1}}, models[0].Keys)
	require.NotNil(t, models[0].Options.Unique)
	assert.True(t, *models[0].Options.Unique)
}

func TestDocumentRoundTrip(t *testing.T) {
	id := primitive.NewObjectID()
	creator := primitive.NewObjectID()
	member := primitive.NewObjectID()
	sess := session.Session{
		ID:              id.Hex(),
		Title:           "Go basics",
		StartTime:       "10:00",
		EndTime:         "12:00",
		Type:            session.TypeWorkshop,
		CreatedBy:       creator.Hex(),
		MaxCapacity:     20,
		RegisteredUsers: []string{member.Hex()},
		IsActive:        true,
	}
	assert.Equal(t, sess, toSessionDoc(sess).domain())

	u := user.User{ID: member.Hex(), Name: "Ada", Email: "ada@club.test", Role: user.RoleStudent, IsActive: true}
	assert.Equal(t, u, toUserDoc(u).domain())
}
