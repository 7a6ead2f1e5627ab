package deliverylog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegramd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "deliveries.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirectoryAndIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "deliveries.db")
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), domain.DeliveryRecord{
		BatchID: "b1", Kind: domain.DeliveryText, ChatID: "42", Status: domain.DeliverySuccess,
	}))
	require.NoError(t, s.Close())

	s, err = Open(path, testLogger())
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordAndList_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, domain.DeliveryRecord{
		BatchID: "b1", Kind: domain.DeliveryText, ChatID: "42", Target: "5 chars",
		Status: domain.DeliverySuccess, CreatedAt: base,
	}))
	require.NoError(t, s.Record(ctx, domain.DeliveryRecord{
		BatchID: "b1", Kind: domain.DeliveryDocument, ChatID: "42", Target: "report.txt", Bytes: 5,
		Status: domain.DeliveryFailed, Error: "telegram: Bad Request", CreatedAt: base.Add(time.Minute),
	}))

	recs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, domain.DeliveryDocument, recs[0].Kind)
	assert.Equal(t, "report.txt", recs[0].Target)
	assert.Equal(t, int64(5), recs[0].Bytes)
	assert.Equal(t, domain.DeliveryFailed, recs[0].Status)
	assert.Equal(t, "telegram: Bad Request", recs[0].Error)
	assert.True(t, recs[0].CreatedAt.Equal(base.Add(time.Minute)))
	assert.NotZero(t, recs[0].ID)

	assert.Equal(t, domain.DeliveryText, recs[1].Kind)
	assert.Equal(t, "b1", recs[1].BatchID)
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	require.NoError(t, s.Record(ctx, domain.DeliveryRecord{
		BatchID: "b", Kind: domain.DeliveryText, ChatID: "1", Status: domain.DeliverySuccess,
	}))
	recs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].CreatedAt.After(before))
}

func TestList_Filters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []domain.DeliveryRecord{
		{BatchID: "a", Kind: domain.DeliveryText, ChatID: "1", Status: domain.DeliverySuccess},
		{BatchID: "a", Kind: domain.DeliveryDocument, ChatID: "1", Status: domain.DeliveryFailed},
		{BatchID: "b", Kind: domain.DeliveryText, ChatID: "2", Status: domain.DeliverySuccess},
		{BatchID: "c", Kind: domain.DeliveryText, ChatID: "@news", Status: domain.DeliverySuccess},
	}
	for i, r := range rows {
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Record(ctx, r))
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by chat", Filter{ChatID: "1"}, 2},
		{"channel username", Filter{ChatID: "@news"}, 1},
		{"by batch", Filter{BatchID: "a"}, 2},
		{"by status", Filter{Status: domain.DeliveryFailed}, 1},
		{"combined", Filter{ChatID: "1", Status: domain.DeliverySuccess}, 1},
		{"limit", Filter{Limit: 3}, 3},
		{"no match", Filter{ChatID: "999"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, recs, tt.want)
		})
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		require.NoError(t, s.Record(ctx, domain.DeliveryRecord{
			BatchID: "x", Kind: domain.DeliveryText, ChatID: "1",
			Status: domain.DeliverySuccess, CreatedAt: now.Add(-age),
		}))
	}

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].CreatedAt.Equal(now.Add(-time.Hour)))

	n, err = s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ImplementsRecorder(t *testing.T) {
	var _ domain.DeliveryRecorder = testStore(t)
}
