package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsim/internal/agents"
	"capsim/internal/trends"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "capsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newRun(t *testing.T, db *SQLite) *RunRow {
	t.Helper()
	run := &RunRow{
		ID:           uuid.New(),
		Status:       RunInitialized,
		NumAgents:    100,
		DurationDays: 3,
		Seed:         42,
		StartTime:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.CreateRun(context.Background(), run))
	return run
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := newRun(t, db)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, RunInitialized, got.Status)
	assert.Equal(t, 100, got.NumAgents)
	assert.Nil(t, got.EndTime)

	require.NoError(t, db.UpdateRunStatus(ctx, run.ID, RunRunning))
	require.NoError(t, db.MarkRunTerminal(ctx, run.ID, RunCompleted, 4320, 12345))

	got, err = db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 4320.0, got.FinalSimTime)
	assert.Equal(t, int64(12345), got.EventCount)
	assert.NotNil(t, got.EndTime)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestPersonsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := newRun(t, db)

	p1 := PersonRow{
		ID: uuid.New(), RunID: run.ID, Profession: "Developer",
		FirstName: "Anna", LastName: "Petrova", Gender: "female",
		DateOfBirth:         time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC),
		FinancialCapability: 3.5, TrendReceptivity: 4.1, SocialStatus: 2.8,
		EnergyLevel: 4.0, TimeBudget: 3.0,
		InterestsJSON: `{"Knowledge":4.5}`, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.BulkInsertPersons(ctx, []PersonRow{p1}))

	require.NoError(t, db.UpsertParticipants(ctx, []ParticipantRow{{
		PersonID: p1.ID, RunID: run.ID,
		FinancialCapability: 3.5, TrendReceptivity: 4.3, SocialStatus: 2.9,
		EnergyLevel: 3.8, TimeBudget: 2.5,
		InterestsJSON: `{"Knowledge":4.6}`, LastActiveSimTime: 815,
	}}))

	var energy, lastActive float64
	require.NoError(t, db.conn.Get(&energy, "SELECT energy_level FROM persons WHERE id = ?", p1.ID.String()))
	require.NoError(t, db.conn.Get(&lastActive, "SELECT last_active_sim_time FROM persons WHERE id = ?", p1.ID.String()))
	assert.Equal(t, 3.8, energy)
	assert.Equal(t, 815.0, lastActive)
}

func TestEventsAndHistoryAppend(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := newRun(t, db)
	agentID := uuid.New()

	evs := []EventRow{
		{ID: uuid.New(), RunID: run.ID, Kind: "PublishPost", Priority: 50, SimTime: 61.5, ActionTimestamp: "01:01", AgentID: &agentID, ProcessingDurationMs: 0.42, ProcessedAt: time.Now().UTC()},
		{ID: uuid.New(), RunID: run.ID, Kind: "EnergyRecovery", Priority: 100, SimTime: 360, ActionTimestamp: "06:00", ProcessedAt: time.Now().UTC()},
	}
	require.NoError(t, db.AppendEvents(ctx, evs))

	require.NoError(t, db.AppendAttributeHistory(ctx, []AttributeHistoryRow{{
		ID: uuid.New(), RunID: run.ID, PersonID: agentID,
		Attribute: "energy_level", OldValue: 4.0, NewValue: 3.8, Delta: -0.2,
		Reason: "publish_post", SimTime: 61.5,
	}}))

	var n int
	require.NoError(t, db.conn.Get(&n, "SELECT COUNT(*) FROM events WHERE run_id = ?", run.ID.String()))
	assert.Equal(t, 2, n)

	var durMs float64
	require.NoError(t, db.conn.Get(&durMs,
		"SELECT processing_duration_ms FROM events WHERE id = ?", evs[0].ID.String()))
	assert.Equal(t, 0.42, durMs)
	require.NoError(t, db.conn.Get(&n, "SELECT COUNT(*) FROM attribute_history WHERE run_id = ?", run.ID.String()))
	assert.Equal(t, 1, n)
}

func TestUpsertTrendsLastWriteWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := newRun(t, db)

	tr := TrendRow{
		ID: uuid.New(), RunID: run.ID, Topic: "Science",
		OriginatorID: uuid.New(), StartSimTime: 100,
		BaseVirality: 2.1, CurrentVirality: 2.1,
		Coverage: "Middle", Sentiment: "Positive", TotalInteractions: 0,
	}
	require.NoError(t, db.UpsertTrends(ctx, []TrendRow{tr}))

	tr.CurrentVirality = 2.4
	tr.TotalInteractions = 57
	tr.Coverage = "High"
	require.NoError(t, db.UpsertTrends(ctx, []TrendRow{tr}))

	var got struct {
		CurrentVirality   float64 `db:"current_virality"`
		TotalInteractions int64   `db:"total_interactions"`
		Coverage          string  `db:"coverage"`
	}
	require.NoError(t, db.conn.Get(&got,
		"SELECT current_virality, total_interactions, coverage FROM trends WHERE id = ?", tr.ID.String()))
	assert.Equal(t, 2.4, got.CurrentVirality)
	assert.Equal(t, int64(57), got.TotalInteractions)
	assert.Equal(t, "High", got.Coverage)

	var n int
	require.NoError(t, db.conn.Get(&n, "SELECT COUNT(*) FROM trends"))
	assert.Equal(t, 1, n)
}

func TestDailySummaryReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := newRun(t, db)

	row := DailyTrendSummaryRow{RunID: run.ID, Day: 1, Topic: "Culture", ActiveTrends: 3, TotalInteractions: 40, AvgVirality: 2.2}
	require.NoError(t, db.SaveDailyTrendSummaries(ctx, []DailyTrendSummaryRow{row}))
	row.ActiveTrends = 5
	require.NoError(t, db.SaveDailyTrendSummaries(ctx, []DailyTrendSummaryRow{row}))

	var n int
	require.NoError(t, db.conn.Get(&n, "SELECT COUNT(*) FROM daily_trend_summary"))
	assert.Equal(t, 1, n)
}

func TestLoadReferenceTablesSeeded(t *testing.T) {
	db := openTestDB(t)

	tbl, err := db.LoadReferenceTables(context.Background())
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	assert.InDelta(t, 4.2, tbl.AffinityFor(agents.Developer, trends.TopicScience), 1e-9)
	lo, hi := tbl.InterestRange(agents.Artist, agents.InterestCreativity)
	assert.InDelta(t, 3.72, lo, 1e-9)
	assert.InDelta(t, 4.32, hi, 1e-9)
}

func TestErrorClassification(t *testing.T) {
	err := &Error{Op: "flush", Kind: KindTransient, Err: errors.New("database is locked")}
	assert.True(t, IsRetryable(err))

	wrapped := &Error{Op: "flush", Kind: KindConstraint, Err: errors.New("unique violation")}
	assert.False(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
}
