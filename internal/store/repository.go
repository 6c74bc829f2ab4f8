// Package store persists simulation runs, agent snapshots, processed events,
// attribute history, and trends, and serves the reference tables that drive
// agent generation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"capsim/internal/refdata"
)

// RunStatus tracks a simulation run's lifecycle in the database.
type RunStatus string

const (
	RunInitialized RunStatus = "INITIALIZED"
	RunRunning     RunStatus = "RUNNING"
	RunStopping    RunStatus = "STOPPING"
	RunCompleted   RunStatus = "COMPLETED"
	RunFailed      RunStatus = "FAILED"
)

// RunRow is a row in the runs table.
type RunRow struct {
	ID           uuid.UUID `db:"id"`
	Status       RunStatus `db:"status"`
	NumAgents    int       `db:"num_agents"`
	DurationDays int       `db:"duration_days"`
	Seed         int64     `db:"seed"`
	StartTime    time.Time `db:"start_time"`
	EndTime      *time.Time `db:"end_time"`
	FinalSimTime float64   `db:"final_sim_time"`
	EventCount   int64     `db:"event_count"`
}

// PersonRow is a full agent snapshot written at spawn time.
type PersonRow struct {
	ID                  uuid.UUID `db:"id"`
	RunID               uuid.UUID `db:"run_id"`
	Profession          string    `db:"profession"`
	FirstName           string    `db:"first_name"`
	LastName            string    `db:"last_name"`
	Gender              string    `db:"gender"`
	DateOfBirth         time.Time `db:"date_of_birth"`
	FinancialCapability float64   `db:"financial_capability"`
	TrendReceptivity    float64   `db:"trend_receptivity"`
	SocialStatus        float64   `db:"social_status"`
	EnergyLevel         float64   `db:"energy_level"`
	TimeBudget          float64   `db:"time_budget"`
	InterestsJSON       string    `db:"interests_json"`
	CreatedAt           time.Time `db:"created_at"`
}

// ParticipantRow updates the dynamic columns of an agent that took part in a
// processed event.
type ParticipantRow struct {
	PersonID            uuid.UUID `db:"person_id"`
	RunID               uuid.UUID `db:"run_id"`
	FinancialCapability float64   `db:"financial_capability"`
	TrendReceptivity    float64   `db:"trend_receptivity"`
	SocialStatus        float64   `db:"social_status"`
	EnergyLevel         float64   `db:"energy_level"`
	TimeBudget          float64   `db:"time_budget"`
	InterestsJSON       string    `db:"interests_json"`
	LastActiveSimTime   float64   `db:"last_active_sim_time"`
}

// EventRow is an append-only record of a processed event.
type EventRow struct {
	ID              uuid.UUID  `db:"id"`
	RunID           uuid.UUID  `db:"run_id"`
	Kind            string     `db:"kind"`
	Priority        int        `db:"priority"`
	SimTime         float64    `db:"sim_time"`
	ActionTimestamp string     `db:"action_timestamp"`
	AgentID         *uuid.UUID `db:"agent_id"`
	TrendID         *uuid.UUID `db:"trend_id"`

	ProcessingDurationMs float64   `db:"processing_duration_ms"`
	ProcessedAt          time.Time `db:"processed_at"`
}

// AttributeHistoryRow records one attribute change applied to an agent.
type AttributeHistoryRow struct {
	ID          uuid.UUID  `db:"id"`
	RunID       uuid.UUID  `db:"run_id"`
	PersonID    uuid.UUID  `db:"person_id"`
	Attribute   string     `db:"attribute"`
	OldValue    float64    `db:"old_value"`
	NewValue    float64    `db:"new_value"`
	Delta       float64    `db:"delta"`
	Reason      string     `db:"reason"`
	SourceTrend *uuid.UUID `db:"source_trend_id"`
	SimTime     float64    `db:"sim_time"`
}

// TrendRow is the persisted state of a trend, last write wins.
type TrendRow struct {
	ID                uuid.UUID  `db:"id"`
	RunID             uuid.UUID  `db:"run_id"`
	Topic             string     `db:"topic"`
	OriginatorID      uuid.UUID  `db:"originator_id"`
	ParentID          *uuid.UUID `db:"parent_id"`
	StartSimTime      float64    `db:"start_sim_time"`
	BaseVirality      float64    `db:"base_virality"`
	CurrentVirality   float64    `db:"current_virality"`
	Coverage          string     `db:"coverage"`
	Sentiment         string     `db:"sentiment"`
	TotalInteractions int64      `db:"total_interactions"`
	Archived          bool       `db:"archived"`
}

// DailyTrendSummaryRow aggregates trend activity for one simulated day.
type DailyTrendSummaryRow struct {
	RunID             uuid.UUID `db:"run_id"`
	Day               int       `db:"day"`
	Topic             string    `db:"topic"`
	ActiveTrends      int       `db:"active_trends"`
	TotalInteractions int64     `db:"total_interactions"`
	AvgVirality       float64   `db:"avg_virality"`
	TopTrendID        *uuid.UUID `db:"top_trend_id"`
}

// Repository is the persistence surface the engine and committer write
// through. Batch methods must be atomic per call.
type Repository interface {
	CreateRun(ctx context.Context, run *RunRow) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus) error
	MarkRunTerminal(ctx context.Context, id uuid.UUID, status RunStatus, finalSimTime float64, eventCount int64) error

	BulkInsertPersons(ctx context.Context, rows []PersonRow) error
	UpsertParticipants(ctx context.Context, rows []ParticipantRow) error
	AppendEvents(ctx context.Context, rows []EventRow) error
	AppendAttributeHistory(ctx context.Context, rows []AttributeHistoryRow) error
	UpsertTrends(ctx context.Context, rows []TrendRow) error
	SaveDailyTrendSummaries(ctx context.Context, rows []DailyTrendSummaryRow) error

	LoadReferenceTables(ctx context.Context) (*refdata.Tables, error)

	Close() error
}
