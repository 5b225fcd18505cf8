package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "subsidyctl.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestViewStateUpsert(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	_, ok, err := db.GetViewState(ctx, "contracts")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.PutViewState(ctx, "contracts", `{"sort":{"idx":1,"dir":"asc"}}`))
	require.NoError(t, db.PutViewState(ctx, "contracts", `{"sort":{"idx":2,"dir":"desc"}}`))
	require.NoError(t, db.PutViewState(ctx, "summary", `{}`))

	raw, ok, err := db.GetViewState(ctx, "contracts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"sort":{"idx":2,"dir":"desc"}}`, raw)

	all, err := db.ListViewStates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "contracts", all[0].TableKey)
	assert.False(t, all[0].UpdatedAt.IsZero())

	require.NoError(t, db.DeleteViewState(ctx, "contracts"))
	_, ok, err = db.GetViewState(ctx, "contracts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActionLog(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	records := []ActionRecord{
		{OccurredAt: base, Action: "approve", TargetID: "1", Mode: "bulk", Result: "ok"},
		{OccurredAt: base.Add(time.Second), Action: "approve", TargetID: "2", Mode: "bulk", Result: "error", Error: "HTTP 500"},
		{OccurredAt: base.Add(2 * time.Second), Action: "deny", TargetID: "3", Mode: "single", Result: "ok"},
	}
	for _, r := range records {
		require.NoError(t, db.RecordAction(ctx, r))
	}

	recent, err := db.ListRecentActions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].TargetID)
	assert.Equal(t, "HTTP 500", recent[1].Error)
	assert.True(t, recent[1].OccurredAt.Equal(base.Add(time.Second)))

	stats, err := db.GetActionStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "approve", stats[0].Action)
	assert.Equal(t, 1, stats[0].OKCount)
	assert.Equal(t, 1, stats[0].ErrCount)
	assert.True(t, stats[0].LastSent.Equal(base.Add(time.Second)))
	assert.Equal(t, "deny", stats[1].Action)
	assert.Equal(t, 0, stats[1].ErrCount)
	assert.True(t, stats[1].LastSent.Equal(base.Add(2*time.Second)))
}

func TestRecordActionRejectsUnknownMode(t *testing.T) {
	db := openTemp(t)
	err := db.RecordAction(context.Background(), ActionRecord{Action: "approve", TargetID: "1", Mode: "batch", Result: "ok"})
	assert.Error(t, err)
}
