package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
	"clubhub/internal/user"
)

func TestConcurrentChangesKeepOneRecordPerPair(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checkIn := at.Add(time.Duration(i) * time.Second)
			_, err := s.ApplyChange(ctx, attendance.Change{
				SessionID: "s1", UserID: "u1", Status: attendance.StatusPresent,
				Method: attendance.MethodSelf, CheckIn: &checkIn, At: checkIn,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := s.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].CheckInTime)

	n, err := s.SeedAbsent(ctx, "s1", []string{"u1", "u2"}, "t1", at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	counts, err := s.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Counts{attendance.StatusPresent: 1, attendance.StatusAbsent: 1}, counts)
}

func TestCheckInPolicies(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	_, err := s.ApplyChange(ctx, attendance.Change{SessionID: "s1", UserID: "u1", Status: attendance.StatusPresent, CheckIn: &first, At: first})
	require.NoError(t, err)

	rec, err := s.ApplyChange(ctx, attendance.Change{SessionID: "s1", UserID: "u1", Status: attendance.StatusLate, CheckIn: &later, Policy: attendance.KeepCheckIn, At: later})
	require.NoError(t, err)
	assert.Equal(t, first, *rec.CheckInTime)
	assert.Equal(t, first, rec.CreatedAt)

	rec, err = s.ApplyChange(ctx, attendance.Change{SessionID: "s1", UserID: "u1", Status: attendance.StatusLate, CheckIn: &later, Policy: attendance.OverwriteCheckIn, At: later})
	require.NoError(t, err)
	assert.Equal(t, later, *rec.CheckInTime)

	// returned records are copies
	*rec.CheckInTime = time.Time{}
	again, err := s.FindRecord(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, later, *again.CheckInTime)
}

func TestUserEmailUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateUser(ctx, user.User{Email: "ada@club.test"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, user.User{Email: "ada@club.test"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = s.FindRecord(ctx, "s1", "u1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
