package metering

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCountersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	counters := `
CREATE TABLE IF NOT EXISTS usage_counters (
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  metric TEXT NOT NULL,
  period_key TEXT NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	index := `
CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_counters_key
  ON usage_counters (subject_id, metric, period_key);`

	require.NoError(t, db.Exec(counters).Error)
	require.NoError(t, db.Exec(index).Error)
	return db
}

func TestRepositoryIncrement(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	count, err := repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// batched increments add the full batch atomically
	count, err = repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestRepositoryIncrementIsolatesKeys(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()
	other := uuid.NewString()

	_, err := repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 3)
	require.NoError(t, err)

	// different metric, period and subject each get their own counter
	count, err := repo.Increment(ctx, subject, enums.MetricEmailSent, "2026-03-14", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-15", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.Increment(ctx, other, enums.MetricDMSent, "2026-03-14", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryIncrementWithin(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	// fill to one below the limit
	for i := 0; i < 4; i++ {
		_, admitted, err := repo.IncrementWithin(ctx, subject, enums.MetricAIReplyGenerated, "2026-03-14", 1, 5)
		require.NoError(t, err)
		require.True(t, admitted)
	}

	// the last slot is admitted
	count, admitted, err := repo.IncrementWithin(ctx, subject, enums.MetricAIReplyGenerated, "2026-03-14", 1, 5)
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Equal(t, int64(5), count)

	// at the limit nothing further goes through and the counter holds
	count, admitted, err = repo.IncrementWithin(ctx, subject, enums.MetricAIReplyGenerated, "2026-03-14", 1, 5)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, int64(5), count)

	current, err := repo.Read(ctx, subject, enums.MetricAIReplyGenerated, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(5), current)
}

func TestRepositoryIncrementWithinBatchOverLimit(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	// a batch larger than the whole limit is rejected before touching the row
	count, admitted, err := repo.IncrementWithin(ctx, subject, enums.MetricEmailSent, "2026-03-14", 10, 5)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, int64(0), count)

	// a batch that would cross the limit on an existing row is rejected whole
	_, admitted, err = repo.IncrementWithin(ctx, subject, enums.MetricEmailSent, "2026-03-14", 3, 5)
	require.NoError(t, err)
	require.True(t, admitted)

	count, admitted, err = repo.IncrementWithin(ctx, subject, enums.MetricEmailSent, "2026-03-14", 3, 5)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, int64(3), count)
}

func TestRepositoryRead(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	// reading an absent counter reports zero usage
	count, err := repo.Read(ctx, subject, enums.MetricDMSent, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 2)
	require.NoError(t, err)

	count, err = repo.Read(ctx, subject, enums.MetricDMSent, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepositoryReadMany(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	_, err := repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 2)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, subject, enums.MetricAutomationCreated, LifetimePeriodKey, 1)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-13", 9)
	require.NoError(t, err)

	counters, err := repo.ReadMany(ctx, subject, []string{"2026-03-14", LifetimePeriodKey})
	require.NoError(t, err)
	require.Len(t, counters, 2)
}

func TestRepositoryListBySubjectPagination(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	for day := 1; day <= 4; day++ {
		_, err := repo.Increment(ctx, subject, enums.MetricDMSent, pageDay(day), 1)
		require.NoError(t, err)
	}

	counters, cursor, err := repo.ListBySubject(ctx, ListCountersQuery{SubjectID: subject, Limit: 3})
	require.NoError(t, err)
	require.Len(t, counters, 3)
	require.NotNil(t, cursor)

	rest, cursor, err := repo.ListBySubject(ctx, ListCountersQuery{SubjectID: subject, Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, cursor)
}

func TestRepositoryListBySubjectMetricFilter(t *testing.T) {
	db := setupCountersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	subject := uuid.NewString()

	_, err := repo.Increment(ctx, subject, enums.MetricDMSent, "2026-03-14", 1)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, subject, enums.MetricEmailSent, "2026-03-14", 1)
	require.NoError(t, err)

	metric := enums.MetricDMSent
	counters, _, err := repo.ListBySubject(ctx, ListCountersQuery{SubjectID: subject, Metric: &metric})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, enums.MetricDMSent, counters[0].Metric)
}

func pageDay(day int) string {
	return "2026-03-0" + string(rune('0'+day))
}
