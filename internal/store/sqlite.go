package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"capsim/internal/agents"
	"capsim/internal/refdata"
	"capsim/internal/trends"
)

// SQLite is the Repository implementation backed by a local SQLite file.
type SQLite struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at path, applies the schema, and
// seeds the reference tables from the compiled defaults when they are empty.
func Open(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The driver serializes writes; a single conn avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	s := &SQLite{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedReferenceTables(refdata.Defaults()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed reference data: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.conn.Close() }

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		num_agents INTEGER NOT NULL,
		duration_days INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		final_sim_time REAL NOT NULL DEFAULT 0,
		event_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		profession TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		gender TEXT NOT NULL,
		date_of_birth TIMESTAMP NOT NULL,
		financial_capability REAL NOT NULL,
		trend_receptivity REAL NOT NULL,
		social_status REAL NOT NULL,
		energy_level REAL NOT NULL,
		time_budget REAL NOT NULL,
		interests_json TEXT NOT NULL,
		last_active_sim_time REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		kind TEXT NOT NULL,
		priority INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		action_timestamp TEXT NOT NULL,
		agent_id TEXT,
		trend_id TEXT,
		processing_duration_ms REAL NOT NULL DEFAULT 0,
		processed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attribute_history (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		person_id TEXT NOT NULL,
		attribute TEXT NOT NULL,
		old_value REAL NOT NULL,
		new_value REAL NOT NULL,
		delta REAL NOT NULL,
		reason TEXT NOT NULL,
		source_trend_id TEXT,
		sim_time REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trends (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		topic TEXT NOT NULL,
		originator_id TEXT NOT NULL,
		parent_id TEXT,
		start_sim_time REAL NOT NULL,
		base_virality REAL NOT NULL,
		current_virality REAL NOT NULL,
		coverage TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		total_interactions INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS daily_trend_summary (
		run_id TEXT NOT NULL REFERENCES runs(id),
		day INTEGER NOT NULL,
		topic TEXT NOT NULL,
		active_trends INTEGER NOT NULL,
		total_interactions INTEGER NOT NULL,
		avg_virality REAL NOT NULL,
		top_trend_id TEXT,
		PRIMARY KEY (run_id, day, topic)
	);

	CREATE TABLE IF NOT EXISTS affinity_map (
		profession TEXT NOT NULL,
		topic TEXT NOT NULL,
		affinity_score REAL NOT NULL,
		PRIMARY KEY (profession, topic)
	);

	CREATE TABLE IF NOT EXISTS agent_interests (
		profession TEXT NOT NULL,
		interest_name TEXT NOT NULL,
		min_value REAL NOT NULL,
		max_value REAL NOT NULL,
		PRIMARY KEY (profession, interest_name)
	);

	CREATE TABLE IF NOT EXISTS agent_attributes (
		profession TEXT NOT NULL,
		attribute TEXT NOT NULL,
		min_value REAL NOT NULL,
		max_value REAL NOT NULL,
		PRIMARY KEY (profession, attribute)
	);

	CREATE TABLE IF NOT EXISTS topic_categories (
		topic TEXT PRIMARY KEY,
		interest_name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_time ON events(run_id, sim_time);
	CREATE INDEX IF NOT EXISTS idx_history_run_person ON attribute_history(run_id, person_id);
	CREATE INDEX IF NOT EXISTS idx_trends_run ON trends(run_id);
	CREATE INDEX IF NOT EXISTS idx_persons_run ON persons(run_id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLite) seedReferenceTables(tbl *refdata.Tables) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for p, row := range tbl.Affinity {
		for topic, score := range row {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO affinity_map (profession, topic, affinity_score) VALUES (?, ?, ?)",
				string(p), string(topic), score,
			); err != nil {
				return err
			}
		}
	}
	for p, row := range tbl.InterestRanges {
		for c, r := range row {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO agent_interests (profession, interest_name, min_value, max_value) VALUES (?, ?, ?, ?)",
				string(p), string(c), r.Min, r.Max,
			); err != nil {
				return err
			}
		}
	}
	for p, row := range tbl.AttributeRanges {
		for a, r := range row {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO agent_attributes (profession, attribute, min_value, max_value) VALUES (?, ?, ?, ?)",
				string(p), string(a), r.Min, r.Max,
			); err != nil {
				return err
			}
		}
	}
	for topic, c := range tbl.TopicCategory {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO topic_categories (topic, interest_name) VALUES (?, ?)",
			string(topic), string(c),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadReferenceTables reads the reference tables back from the database so a
// run picks up any operator overrides.
func (s *SQLite) LoadReferenceTables(ctx context.Context) (*refdata.Tables, error) {
	tbl := &refdata.Tables{
		Affinity:        make(map[agents.Profession]map[trends.Topic]float64),
		InterestRanges:  make(map[agents.Profession]map[agents.InterestCategory]refdata.Range),
		AttributeRanges: make(map[agents.Profession]map[agents.Attribute]refdata.Range),
		TopicCategory:   make(map[trends.Topic]agents.InterestCategory),
	}

	type affRow struct {
		Profession string  `db:"profession"`
		Topic      string  `db:"topic"`
		Score      float64 `db:"affinity_score"`
	}
	var affs []affRow
	if err := s.conn.SelectContext(ctx, &affs, "SELECT profession, topic, affinity_score FROM affinity_map"); err != nil {
		return nil, wrapErr("load affinity_map", err)
	}
	for _, r := range affs {
		p := agents.Profession(r.Profession)
		if tbl.Affinity[p] == nil {
			tbl.Affinity[p] = make(map[trends.Topic]float64)
		}
		tbl.Affinity[p][trends.Topic(r.Topic)] = r.Score
	}

	type rangeRow struct {
		Profession string  `db:"profession"`
		Name       string  `db:"name"`
		Min        float64 `db:"min_value"`
		Max        float64 `db:"max_value"`
	}
	var irs []rangeRow
	if err := s.conn.SelectContext(ctx, &irs, "SELECT profession, interest_name AS name, min_value, max_value FROM agent_interests"); err != nil {
		return nil, wrapErr("load agent_interests", err)
	}
	for _, r := range irs {
		p := agents.Profession(r.Profession)
		if tbl.InterestRanges[p] == nil {
			tbl.InterestRanges[p] = make(map[agents.InterestCategory]refdata.Range)
		}
		tbl.InterestRanges[p][agents.InterestCategory(r.Name)] = refdata.Range{Min: r.Min, Max: r.Max}
	}

	var ars []rangeRow
	if err := s.conn.SelectContext(ctx, &ars, "SELECT profession, attribute AS name, min_value, max_value FROM agent_attributes"); err != nil {
		return nil, wrapErr("load agent_attributes", err)
	}
	for _, r := range ars {
		p := agents.Profession(r.Profession)
		if tbl.AttributeRanges[p] == nil {
			tbl.AttributeRanges[p] = make(map[agents.Attribute]refdata.Range)
		}
		tbl.AttributeRanges[p][agents.Attribute(r.Name)] = refdata.Range{Min: r.Min, Max: r.Max}
	}

	type topicRow struct {
		Topic string `db:"topic"`
		Name  string `db:"interest_name"`
	}
	var trs []topicRow
	if err := s.conn.SelectContext(ctx, &trs, "SELECT topic, interest_name FROM topic_categories"); err != nil {
		return nil, wrapErr("load topic_categories", err)
	}
	for _, r := range trs {
		tbl.TopicCategory[trends.Topic(r.Topic)] = agents.InterestCategory(r.Name)
	}

	if err := tbl.Validate(); err != nil {
		return nil, wrapErr("validate reference tables", err)
	}
	return tbl, nil
}

func (s *SQLite) CreateRun(ctx context.Context, run *RunRow) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO runs
		(id, status, num_agents, duration_days, seed, start_time, final_sim_time, event_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Status), run.NumAgents, run.DurationDays,
		run.Seed, run.StartTime, run.FinalSimTime, run.EventCount,
	)
	return wrapErr("create run", err)
}

func (s *SQLite) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	var raw struct {
		ID           string     `db:"id"`
		Status       string     `db:"status"`
		NumAgents    int        `db:"num_agents"`
		DurationDays int        `db:"duration_days"`
		Seed         int64      `db:"seed"`
		StartTime    time.Time  `db:"start_time"`
		EndTime      *time.Time `db:"end_time"`
		FinalSimTime float64    `db:"final_sim_time"`
		EventCount   int64      `db:"event_count"`
	}
	err := s.conn.GetContext(ctx, &raw, "SELECT * FROM runs WHERE id = ?", id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapErr("get run", fmt.Errorf("run %s not found", id))
	}
	if err != nil {
		return nil, wrapErr("get run", err)
	}
	rid, err := uuid.Parse(raw.ID)
	if err != nil {
		return nil, wrapErr("get run", err)
	}
	return &RunRow{
		ID: rid, Status: RunStatus(raw.Status),
		NumAgents: raw.NumAgents, DurationDays: raw.DurationDays, Seed: raw.Seed,
		StartTime: raw.StartTime, EndTime: raw.EndTime,
		FinalSimTime: raw.FinalSimTime, EventCount: raw.EventCount,
	}, nil
}

func (s *SQLite) UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET status = ? WHERE id = ?", string(status), id.String())
	return wrapErr("update run status", err)
}

func (s *SQLite) MarkRunTerminal(ctx context.Context, id uuid.UUID, status RunStatus, finalSimTime float64, eventCount int64) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ?, final_sim_time = ?, event_count = ? WHERE id = ?`,
		string(status), time.Now().UTC(), finalSimTime, eventCount, id.String())
	return wrapErr("mark run terminal", err)
}

func (s *SQLite) BulkInsertPersons(ctx context.Context, rows []PersonRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("insert persons", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO persons
		(id, run_id, profession, first_name, last_name, gender, date_of_birth,
		 financial_capability, trend_receptivity, social_status, energy_level,
		 time_budget, interests_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapErr("insert persons", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ID.String(), r.RunID.String(), r.Profession, r.FirstName, r.LastName,
			r.Gender, r.DateOfBirth, r.FinancialCapability, r.TrendReceptivity,
			r.SocialStatus, r.EnergyLevel, r.TimeBudget, r.InterestsJSON, r.CreatedAt,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("insert person %s", r.ID), err)
		}
	}
	return wrapErr("insert persons", tx.Commit())
}

func (s *SQLite) UpsertParticipants(ctx context.Context, rows []ParticipantRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("upsert participants", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`UPDATE persons SET
		financial_capability = ?, trend_receptivity = ?, social_status = ?,
		energy_level = ?, time_budget = ?, interests_json = ?, last_active_sim_time = ?
		WHERE id = ? AND run_id = ?`)
	if err != nil {
		return wrapErr("upsert participants", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.FinancialCapability, r.TrendReceptivity, r.SocialStatus,
			r.EnergyLevel, r.TimeBudget, r.InterestsJSON, r.LastActiveSimTime,
			r.PersonID.String(), r.RunID.String(),
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("upsert participant %s", r.PersonID), err)
		}
	}
	return wrapErr("upsert participants", tx.Commit())
}

func (s *SQLite) AppendEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("append events", err)
	}
	defer tx.Rollback()

	// OR IGNORE keeps flush retries idempotent when an earlier attempt
	// already committed this sub-batch.
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO events
		(id, run_id, kind, priority, sim_time, action_timestamp, agent_id, trend_id, processing_duration_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapErr("append events", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ID.String(), r.RunID.String(), r.Kind, r.Priority, r.SimTime,
			r.ActionTimestamp, uuidPtr(r.AgentID), uuidPtr(r.TrendID),
			r.ProcessingDurationMs, r.ProcessedAt,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("append event %s", r.ID), err)
		}
	}
	return wrapErr("append events", tx.Commit())
}

func (s *SQLite) AppendAttributeHistory(ctx context.Context, rows []AttributeHistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("append attribute history", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO attribute_history
		(id, run_id, person_id, attribute, old_value, new_value, delta, reason, source_trend_id, sim_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapErr("append attribute history", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ID.String(), r.RunID.String(), r.PersonID.String(), r.Attribute,
			r.OldValue, r.NewValue, r.Delta, r.Reason, uuidPtr(r.SourceTrend), r.SimTime,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("append history %s", r.ID), err)
		}
	}
	return wrapErr("append attribute history", tx.Commit())
}

func (s *SQLite) UpsertTrends(ctx context.Context, rows []TrendRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("upsert trends", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO trends
		(id, run_id, topic, originator_id, parent_id, start_sim_time, base_virality,
		 current_virality, coverage, sentiment, total_interactions, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_virality = excluded.current_virality,
			coverage = excluded.coverage,
			total_interactions = excluded.total_interactions,
			archived = excluded.archived`)
	if err != nil {
		return wrapErr("upsert trends", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		archived := 0
		if r.Archived {
			archived = 1
		}
		_, err := stmt.ExecContext(ctx,
			r.ID.String(), r.RunID.String(), r.Topic, r.OriginatorID.String(),
			uuidPtr(r.ParentID), r.StartSimTime, r.BaseVirality, r.CurrentVirality,
			r.Coverage, r.Sentiment, r.TotalInteractions, archived,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("upsert trend %s", r.ID), err)
		}
	}
	return wrapErr("upsert trends", tx.Commit())
}

func (s *SQLite) SaveDailyTrendSummaries(ctx context.Context, rows []DailyTrendSummaryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("save daily summaries", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO daily_trend_summary
			(run_id, day, topic, active_trends, total_interactions, avg_virality, top_trend_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID.String(), r.Day, r.Topic, r.ActiveTrends,
			r.TotalInteractions, r.AvgVirality, uuidPtr(r.TopTrendID),
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("save daily summary day %d topic %s", r.Day, r.Topic), err)
		}
	}
	return wrapErr("save daily summaries", tx.Commit())
}

func uuidPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
