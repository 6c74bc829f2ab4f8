package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"capsim/internal/refdata"
)

// Memory is an in-memory Repository used by tests and dry runs. It records
// the order of batch operations and can be primed to fail.
type Memory struct {
	mu sync.Mutex

	Runs         map[uuid.UUID]*RunRow
	Persons      map[uuid.UUID]PersonRow
	Participants map[uuid.UUID]ParticipantRow
	Events       []EventRow
	History      []AttributeHistoryRow
	Trends       map[uuid.UUID]TrendRow
	Summaries    []DailyTrendSummaryRow

	// Ops records batch method names in call order.
	Ops []string

	// failures maps an op name to a queue of errors returned before the op
	// succeeds. Used to exercise retry paths.
	failures map[string][]error
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		Runs:         make(map[uuid.UUID]*RunRow),
		Persons:      make(map[uuid.UUID]PersonRow),
		Participants: make(map[uuid.UUID]ParticipantRow),
		Trends:       make(map[uuid.UUID]TrendRow),
		failures:     make(map[string][]error),
	}
}

// FailNext queues err to be returned by the next n calls to op.
func (m *Memory) FailNext(op string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures[op] = append(m.failures[op], err)
	}
}

// consume must be called with the lock held.
func (m *Memory) consume(op string) error {
	m.Ops = append(m.Ops, op)
	q := m.failures[op]
	if len(q) == 0 {
		return nil
	}
	m.failures[op] = q[1:]
	return q[0]
}

func (m *Memory) CreateRun(_ context.Context, run *RunRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("CreateRun"); err != nil {
		return err
	}
	cp := *run
	m.Runs[run.ID] = &cp
	return nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (*RunRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.Runs[id]
	if !ok {
		return nil, &Error{Op: "get run", Kind: KindInternal, Err: fmt.Errorf("run %s not found", id)}
	}
	cp := *run
	return &cp, nil
}

func (m *Memory) UpdateRunStatus(_ context.Context, id uuid.UUID, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.Runs[id]; ok {
		run.Status = status
	}
	return nil
}

func (m *Memory) MarkRunTerminal(_ context.Context, id uuid.UUID, status RunStatus, finalSimTime float64, eventCount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("MarkRunTerminal"); err != nil {
		return err
	}
	if run, ok := m.Runs[id]; ok {
		run.Status = status
		run.FinalSimTime = finalSimTime
		run.EventCount = eventCount
	}
	return nil
}

func (m *Memory) BulkInsertPersons(_ context.Context, rows []PersonRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("BulkInsertPersons"); err != nil {
		return err
	}
	for _, r := range rows {
		m.Persons[r.ID] = r
	}
	return nil
}

func (m *Memory) UpsertParticipants(_ context.Context, rows []ParticipantRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("UpsertParticipants"); err != nil {
		return err
	}
	for _, r := range rows {
		m.Participants[r.PersonID] = r
	}
	return nil
}

func (m *Memory) AppendEvents(_ context.Context, rows []EventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("AppendEvents"); err != nil {
		return err
	}
	m.Events = append(m.Events, rows...)
	return nil
}

func (m *Memory) AppendAttributeHistory(_ context.Context, rows []AttributeHistoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("AppendAttributeHistory"); err != nil {
		return err
	}
	m.History = append(m.History, rows...)
	return nil
}

func (m *Memory) UpsertTrends(_ context.Context, rows []TrendRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("UpsertTrends"); err != nil {
		return err
	}
	for _, r := range rows {
		m.Trends[r.ID] = r
	}
	return nil
}

func (m *Memory) SaveDailyTrendSummaries(_ context.Context, rows []DailyTrendSummaryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume("SaveDailyTrendSummaries"); err != nil {
		return err
	}
	m.Summaries = append(m.Summaries, rows...)
	return nil
}

func (m *Memory) LoadReferenceTables(_ context.Context) (*refdata.Tables, error) {
	return refdata.Defaults(), nil
}

func (m *Memory) Close() error { return nil }
