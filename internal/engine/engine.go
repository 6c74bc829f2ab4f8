// Package engine runs the discrete-event simulation loop: a single
// cooperative task popping events off the priority queue, dispatching them to
// per-kind handlers, and buffering state deltas through the batch committer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"capsim/internal/agents"
	"capsim/internal/config"
	"capsim/internal/refdata"
	"capsim/internal/store"
	"capsim/internal/trends"
)

// Phase is the engine lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseRunning
	PhaseStopping
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseInitializing:
		return "Initializing"
	case PhaseRunning:
		return "Running"
	case PhaseStopping:
		return "Stopping"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	}
	return "Unknown"
}

// StopMode selects how Stop winds the run down.
type StopMode int

const (
	// StopGraceful drains scheduled system events before flushing.
	StopGraceful StopMode = iota
	// StopForced discards the queue and flushes best effort.
	StopForced
)

// Status is an immutable snapshot of the engine's observable state.
type Status struct {
	RunID           uuid.UUID
	SimTime         float64
	EventsProcessed int64
	QueueLen        int64
	Phase           Phase
}

// Engine owns all mutable simulation state. Everything except Stop and
// Status runs on the single loop goroutine.
type Engine struct {
	cfg   *config.Config
	repo  store.Repository
	clock Clock
	rng   *rand.Rand
	log   zerolog.Logger

	runID     uuid.UUID
	queue     *Queue
	committer *Committer
	tables    *refdata.Tables
	catTopics map[agents.InterestCategory][]trends.Topic

	people     []*agents.Person
	byID       map[uuid.UUID]*agents.Person
	liveTrends map[uuid.UUID]*trends.Trend

	seeded []*agents.Person

	endTime  float64
	rules    agents.ActionRules
	exposure agents.ExposureEffect

	meanTimeBudget float64
	draining       bool

	dispatchDurs []time.Duration

	phase           atomic.Int32
	simTimeBits     atomic.Uint64
	eventsProcessed atomic.Int64
	queueLen        atomic.Int64
	actionsCount    atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopMode StopMode
	stopped  bool
}

// New creates an engine for one run. The caller owns the repository's
// lifetime; clock and rng must not be shared with other runs.
func New(cfg *config.Config, repo store.Repository, clock Clock, rng *rand.Rand, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:        cfg,
		repo:       repo,
		clock:      clock,
		rng:        rng,
		log:        log,
		queue:      NewQueue(),
		byID:       make(map[uuid.UUID]*agents.Person),
		liveTrends: make(map[uuid.UUID]*trends.Trend),
	}
	e.phase.Store(int32(PhaseIdle))
	return e
}

// SeedPopulation injects a prebuilt population instead of spawning one.
// Must be called before Start.
func (e *Engine) SeedPopulation(people []*agents.Person) {
	e.seeded = people
}

// Status returns a snapshot of the run's observable counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	runID := e.runID
	e.mu.Unlock()
	return Status{
		RunID:           runID,
		SimTime:         math.Float64frombits(e.simTimeBits.Load()),
		EventsProcessed: e.eventsProcessed.Load(),
		QueueLen:        e.queueLen.Load(),
		Phase:           Phase(e.phase.Load()),
	}
}

// Stop requests shutdown. Graceful drains system events within the graceful
// deadline; forced discards the queue. Forced escalates an in-flight
// graceful stop; repeated calls with the same mode are no-ops.
func (e *Engine) Stop(mode StopMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped && (e.stopMode == StopForced || mode == StopGraceful) {
		return
	}
	e.stopped = true
	e.stopMode = mode
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) requestedStop() (StopMode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopMode, e.stopped
}

// Start runs the simulation until natural end, stop, or fatal error. It
// returns an error only for startup failures; runtime failures terminate the
// run with phase Failed and a nil return.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	e.phase.Store(int32(PhaseInitializing))

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	alreadyStopped := e.stopped
	e.mu.Unlock()
	if alreadyStopped {
		cancel()
	}

	if err := e.initialize(loopCtx); err != nil {
		e.phase.Store(int32(PhaseFailed))
		return err
	}

	e.phase.Store(int32(PhaseRunning))
	e.log.Info().
		Str("run_id", e.runID.String()).
		Int("agents", len(e.people)).
		Int("days", e.cfg.DurationDays).
		Bool("realtime", e.cfg.Realtime).
		Msg("simulation started")

	e.runLoop(loopCtx)
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	tables, err := e.repo.LoadReferenceTables(ctx)
	if err != nil {
		return fmt.Errorf("load reference tables: %w", err)
	}
	e.tables = tables
	e.catTopics = tables.CategoryTopics()
	e.endTime = e.cfg.SimMinutes()

	e.rules = agents.ActionRules{
		ScoreThreshold:     e.cfg.DecideScoreThreshold,
		PostCooldownMin:    e.cfg.PostCooldownMin,
		SelfDevCooldownMin: e.cfg.SelfDevCooldownMin,
		PurchaseCooldown:   e.cfg.PurchaseCooldownMin,
		PurchaseLevels:     e.cfg.PurchaseLevels(),
		PurchaseCaps:       e.cfg.PurchaseCaps,
		PurchaseGates:      e.cfg.PurchaseGates,
	}
	e.exposure = agents.ExposureEffect{
		CooldownMin:   e.cfg.ExposureCooldownMin,
		ReceptivityK1: e.cfg.ReceptivityGain,
		EnergyK2:      e.cfg.EnergyDrain,
	}

	e.mu.Lock()
	e.runID = uuid.New()
	e.mu.Unlock()
	run := &store.RunRow{
		ID:           e.runID,
		Status:       store.RunInitialized,
		NumAgents:    e.cfg.NumAgents,
		DurationDays: e.cfg.DurationDays,
		Seed:         e.cfg.Seed,
		StartTime:    time.Now().UTC(),
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	if e.seeded != nil {
		e.people = e.seeded
	} else {
		spawner := agents.NewSpawner(e.rng, e.tables)
		e.people = spawner.SpawnPopulation(e.cfg.NumAgents)
	}
	var budgetSum float64
	rows := make([]store.PersonRow, 0, len(e.people))
	for _, p := range e.people {
		p.ResetParticipantState()
		e.byID[p.ID] = p
		budgetSum += p.TimeBudget
		rows = append(rows, personRow(e.runID, p))
	}
	e.meanTimeBudget = budgetSum / float64(len(e.people))
	if e.meanTimeBudget <= 0 {
		e.meanTimeBudget = 1
	}
	if err := e.repo.BulkInsertPersons(ctx, rows); err != nil {
		return fmt.Errorf("insert population: %w", err)
	}

	e.committer = NewCommitter(e.repo, e.log,
		e.cfg.BatchSize,
		time.Duration(e.cfg.BatchTimeoutSec*float64(time.Second)),
		e.cfg.BatchEveryEvents,
		e.cfg.RetryMaxAttempts,
	)

	e.schedule(KindDailyReset, 0, nil)
	e.schedule(KindEnergyRecovery, e.cfg.EnergyRecoveryInterval, nil)
	e.schedule(KindSaveDailyTrends, 1440, nil)
	e.schedule(KindDecideSweep, e.cfg.DecideIntervalMin, nil)

	if err := e.repo.UpdateRunStatus(ctx, e.runID, store.RunRunning); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

func (e *Engine) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			mode, ok := e.requestedStop()
			if !ok {
				mode = StopGraceful
			}
			e.shutdown(mode)
			return
		}

		if e.queue.Len() == 0 || e.queue.PeekTime() > e.endTime {
			e.naturalEnd(ctx)
			return
		}

		ev := e.queue.Pop()
		e.queueLen.Store(int64(e.queue.Len()))

		if err := e.clock.SleepUntil(ctx, ev.Time); err != nil {
			mode, ok := e.requestedStop()
			if !ok {
				mode = StopGraceful
			}
			e.shutdown(mode)
			return
		}

		e.dispatch(ev)

		e.setSimTime(ev.Time)
		e.eventsProcessed.Add(1)
		e.queueLen.Store(int64(e.queue.Len()))

		if e.queue.Len() > e.cfg.MaxQueue {
			e.fatal(fmt.Errorf("event queue length %d exceeds cap %d", e.queue.Len(), e.cfg.MaxQueue))
			return
		}
		if e.committer.ShouldFlush(e.cfg.Realtime) {
			if err := e.committer.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				e.fatal(fmt.Errorf("batch flush: %w", err))
				return
			}
		}
	}
}

// naturalEnd finishes a run whose queue ran out of work before endTime. In
// realtime mode the run still occupies its full wall-clock window.
func (e *Engine) naturalEnd(ctx context.Context) {
	if e.cfg.Realtime {
		if err := e.clock.SleepUntil(ctx, e.endTime); err != nil {
			mode, ok := e.requestedStop()
			if !ok {
				mode = StopGraceful
			}
			e.shutdown(mode)
			return
		}
	}
	e.setSimTime(e.endTime)
	e.finish(store.RunCompleted, PhaseCompleted, "simulation completed")
}

// shutdown implements the stopping state machine. The loop context is
// already canceled at this point, so all repository work runs on fresh
// wall-deadline contexts.
func (e *Engine) shutdown(mode StopMode) {
	if Phase(e.phase.Load()) == PhaseCompleted || Phase(e.phase.Load()) == PhaseFailed {
		return
	}
	e.phase.Store(int32(PhaseStopping))
	ctx := context.Background()
	if err := e.repo.UpdateRunStatus(ctx, e.runID, store.RunStopping); err != nil {
		e.log.Warn().Err(err).Msg("mark run stopping")
	}

	switch mode {
	case StopGraceful:
		e.gracefulDrain()
		e.finish(store.RunCompleted, PhaseCompleted, "graceful stop completed")
	case StopForced:
		discarded := len(e.queue.Drain())
		e.queueLen.Store(0)
		deadline := time.Duration(e.cfg.ForcedTimeoutSec * float64(time.Second))
		flushCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		flushErr := e.committer.Flush(flushCtx)
		if flushErr != nil {
			e.log.Error().Err(flushErr).Msg("forced stop flush failed")
		}
		if discarded > 0 || flushErr != nil {
			e.finishWithin(deadline, store.RunFailed, PhaseFailed, "forced stop discarded pending work")
		} else {
			e.finishWithin(deadline, store.RunCompleted, PhaseCompleted, "forced stop completed")
		}
	}
}

// gracefulDrain processes remaining system events without rescheduling
// periodics, skipping discretionary agent actions, under a soft wall
// deadline.
func (e *Engine) gracefulDrain() {
	e.draining = true
	soft := time.Duration((e.cfg.GracefulTimeoutSec - 5) * float64(time.Second))
	if soft <= 0 {
		soft = time.Duration(e.cfg.GracefulTimeoutSec * float64(time.Second))
	}
	deadline := time.Now().Add(soft)

	for e.queue.Len() > 0 && time.Now().Before(deadline) {
		if mode, ok := e.requestedStop(); ok && mode == StopForced {
			break
		}
		ev := e.queue.Pop()
		e.queueLen.Store(int64(e.queue.Len()))
		if ev.Time > e.endTime || ev.Priority != PrioritySystem {
			continue
		}
		e.dispatch(ev)
		e.setSimTime(ev.Time)
		e.eventsProcessed.Add(1)
	}
	e.queue.Drain()
	e.queueLen.Store(0)
}

func (e *Engine) finish(status store.RunStatus, phase Phase, msg string) {
	e.finishWithin(time.Duration(e.cfg.GracefulTimeoutSec*float64(time.Second)), status, phase, msg)
}

func (e *Engine) finishWithin(deadline time.Duration, status store.RunStatus, phase Phase, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	if err := e.committer.Flush(ctx); err != nil {
		e.log.Error().Err(err).Msg("final flush failed")
		status = store.RunFailed
		phase = PhaseFailed
	}
	simTime := math.Float64frombits(e.simTimeBits.Load())
	if err := e.repo.MarkRunTerminal(ctx, e.runID, status, simTime, e.eventsProcessed.Load()); err != nil {
		e.log.Error().Err(err).Msg("mark run terminal failed")
	}
	e.phase.Store(int32(phase))

	flushes, rows := e.committer.Stats()
	e.log.Info().
		Str("run_id", e.runID.String()).
		Str("status", string(status)).
		Float64("sim_time", simTime).
		Int64("events", e.eventsProcessed.Load()).
		Int64("actions", e.actionsCount.Load()).
		Int64("flushes", flushes).
		Int64("rows", rows).
		Dur("p95_dispatch", e.dispatchP95()).
		Msg(msg)
}

// fatal handles runtime invariant breaches: best-effort flush, run marked
// Failed.
func (e *Engine) fatal(err error) {
	e.log.Error().Err(err).Str("run_id", e.runID.String()).Msg("fatal simulation error")
	e.queue.Drain()
	e.queueLen.Store(0)
	e.finishWithin(time.Duration(e.cfg.ForcedTimeoutSec*float64(time.Second)), store.RunFailed, PhaseFailed, "run failed")
}

func (e *Engine) setSimTime(t float64) {
	prev := math.Float64frombits(e.simTimeBits.Load())
	if t > prev {
		e.simTimeBits.Store(math.Float64bits(t))
	}
}

func (e *Engine) schedule(kind Kind, at float64, mutate func(*Event)) {
	ev := &Event{
		ID:       uuid.New(),
		Kind:     kind,
		Priority: PriorityFor(kind),
		Time:     at,
	}
	if mutate != nil {
		mutate(ev)
	}
	e.queue.Push(ev)
	e.queueLen.Store(int64(e.queue.Len()))
}

func (e *Engine) observeDispatch(d time.Duration) {
	// Bounded reservoir; enough for a run-level P95 readout.
	if len(e.dispatchDurs) < 100000 {
		e.dispatchDurs = append(e.dispatchDurs, d)
	}
}

func (e *Engine) dispatchP95() time.Duration {
	if len(e.dispatchDurs) == 0 {
		return 0
	}
	durs := make([]time.Duration, len(e.dispatchDurs))
	copy(durs, e.dispatchDurs)
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	return durs[len(durs)*95/100]
}

func personRow(runID uuid.UUID, p *agents.Person) store.PersonRow {
	interests, _ := json.Marshal(p.Interests)
	return store.PersonRow{
		ID:                  p.ID,
		RunID:               runID,
		Profession:          string(p.Profession),
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		Gender:              p.Gender,
		DateOfBirth:         p.BirthDate,
		FinancialCapability: p.FinancialCapability,
		TrendReceptivity:    p.TrendReceptivity,
		SocialStatus:        p.SocialStatus,
		EnergyLevel:         p.EnergyLevel,
		TimeBudget:          p.TimeBudget,
		InterestsJSON:       string(interests),
		CreatedAt:           p.CreatedAt,
	}
}
