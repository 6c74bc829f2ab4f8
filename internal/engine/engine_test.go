package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsim/internal/agents"
	"capsim/internal/config"
	"capsim/internal/refdata"
	"capsim/internal/store"
	"capsim/internal/trends"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.NumAgents = 5
	cfg.DurationDays = 1
	cfg.Seed = 42
	cfg.LogDir = ""
	return cfg
}

func testPerson(profession agents.Profession) *agents.Person {
	p := &agents.Person{
		ID:         uuid.New(),
		Profession: profession,
		FirstName:  "Test",
		LastName:   "Agent",
		Gender:     "female",
		BirthDate:  time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:  time.Now().UTC(),

		FinancialCapability: 3.0,
		TrendReceptivity:    4.0,
		SocialStatus:        4.0,
		EnergyLevel:         5.0,
		TimeBudget:          3.0,
	}
	for _, c := range agents.AllInterestCategories() {
		p.Interests.Set(c, 2.5)
	}
	p.ResetParticipantState()
	return p
}

func runEngine(t *testing.T, cfg *config.Config, people []*agents.Person) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	e := New(cfg, mem, NewFastClock(), rand.New(rand.NewSource(cfg.Seed)), zerolog.Nop())
	if people != nil {
		cfg.NumAgents = len(people)
		e.SeedPopulation(people)
	}
	require.NoError(t, e.Start(context.Background()))
	return e, mem
}

func TestSingleDeveloperPublishesScience(t *testing.T) {
	cfg := testConfig()
	p := testPerson(agents.Developer)
	p.FinancialCapability = 0.3 // below every purchase gate
	p.TimeBudget = 5.0
	p.Interests = agents.Interests{}
	for _, c := range agents.AllInterestCategories() {
		p.Interests.Set(c, 1.0)
	}
	p.Interests.Set(agents.InterestKnowledge, 4.5)

	e, mem := runEngine(t, cfg, []*agents.Person{p})

	assert.Equal(t, PhaseCompleted, e.Status().Phase)
	assert.Equal(t, store.RunCompleted, mem.Runs[e.Status().RunID].Status)

	var published, purchases int
	for _, ev := range mem.Events {
		switch ev.Kind {
		case string(KindPublishPost):
			if ev.TrendID != nil {
				published++
			}
		case string(KindPurchase):
			purchases++
		}
	}
	assert.GreaterOrEqual(t, published, 1, "developer should publish at least once")
	assert.Len(t, mem.Persons, 1)

	// No purchase level is affordable at financial_capability 0.3.
	for _, row := range mem.History {
		assert.NotEqual(t, "purchase", row.Reason)
	}

	for _, tr := range mem.Trends {
		assert.Equal(t, "Science", tr.Topic)
		assert.Equal(t, p.ID, tr.OriginatorID)
		assert.Greater(t, tr.BaseVirality, 0.0)
		assert.LessOrEqual(t, tr.BaseVirality, 3.0)
	}
}

func TestAttributeHistoryDeltasExact(t *testing.T) {
	cfg := testConfig()
	var people []*agents.Person
	for i := 0; i < 5; i++ {
		people = append(people, testPerson(agents.Blogger))
	}
	_, mem := runEngine(t, cfg, people)

	require.NotEmpty(t, mem.History)
	for _, row := range mem.History {
		assert.Equal(t, row.NewValue-row.OldValue, row.Delta, "row %s/%s", row.Attribute, row.Reason)
		if row.Attribute != "interest_knowledge" {
			assert.GreaterOrEqual(t, row.NewValue, 0.0)
			assert.LessOrEqual(t, row.NewValue, 5.0)
		}
	}
}

func TestEnergyRecoveryRuns(t *testing.T) {
	cfg := testConfig()
	people := []*agents.Person{testPerson(agents.Worker)}
	people[0].EnergyLevel = 2.0
	_, mem := runEngine(t, cfg, people)

	var recoveries int
	for _, row := range mem.History {
		if row.Reason == "energy_recovery" {
			recoveries++
			assert.Equal(t, "energy_level", row.Attribute)
			assert.Greater(t, row.Delta, 0.0)
		}
	}
	assert.GreaterOrEqual(t, recoveries, 1)
}

func TestDailyResetClearsPurchaseCounters(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	e := New(cfg, mem, NewFastClock(), rand.New(rand.NewSource(1)), zerolog.Nop())

	p := testPerson(agents.Businessman)
	p.PurchasesToday[1] = 3
	p.PurchasesToday[2] = 1
	p.ActionsToday = 12

	e.tables = refdata.Defaults()
	e.people = []*agents.Person{p}
	e.byID = map[uuid.UUID]*agents.Person{p.ID: p}
	e.committer = NewCommitter(mem, zerolog.Nop(), 100, time.Second, 1000, 5)
	e.rng = rand.New(rand.NewSource(1))

	e.handleDailyReset(1440)

	assert.Empty(t, p.PurchasesToday)
	assert.Zero(t, p.ActionsToday)
	// Re-rolled budget sits on the half-point grid inside the profession range.
	assert.Equal(t, p.TimeBudget, agents.RoundTimeBudget(p.TimeBudget))
	lo, hi := e.tables.AttributeRange(agents.Businessman, agents.AttrTimeBudget)
	assert.GreaterOrEqual(t, p.TimeBudget, lo)
	assert.LessOrEqual(t, p.TimeBudget, hi)
}

func TestMeanActionsPerAgentNearTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = 7
	cfg.EnergyRecoveryDelta = 3.0

	var people []*agents.Person
	for i := 0; i < 20; i++ {
		p := testPerson(agents.Blogger)
		p.Interests.Set(agents.InterestCreativity, 4.5)
		people = append(people, p)
	}
	e, mem := runEngine(t, cfg, people)
	require.Equal(t, PhaseCompleted, e.Status().Phase)

	actions := 0
	for _, ev := range mem.Events {
		if ev.Kind == string(KindPublishPost) && ev.TrendID != nil {
			actions++
		}
	}
	for _, row := range mem.History {
		if row.Reason == "purchase" && row.Attribute == "financial_capability" {
			actions++
		}
		if row.Reason == "self_dev" && row.Attribute == "interest_knowledge" {
			actions++
		}
	}
	mean := float64(actions) / float64(len(people))
	assert.GreaterOrEqual(t, mean, 34.0, "mean actions per agent per day")
	assert.LessOrEqual(t, mean, 52.0, "mean actions per agent per day")
}

func TestGracefulStopIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Realtime = true
	cfg.SpeedFactor = 60

	mem := store.NewMemory()
	clock, err := NewRealtimeClock(cfg.SpeedFactor)
	require.NoError(t, err)
	e := New(cfg, mem, clock, rand.New(rand.NewSource(3)), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	e.Stop(StopGraceful)
	e.Stop(StopGraceful)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(35 * time.Second):
		t.Fatal("graceful stop did not finish in time")
	}

	assert.Equal(t, PhaseCompleted, e.Status().Phase)
	assert.Equal(t, store.RunCompleted, mem.Runs[e.Status().RunID].Status)

	var terminalWrites int
	for _, op := range mem.Ops {
		if op == "MarkRunTerminal" {
			terminalWrites++
		}
	}
	assert.Equal(t, 1, terminalWrites)

	// A second stop after completion changes nothing.
	e.Stop(StopGraceful)
	assert.Equal(t, PhaseCompleted, e.Status().Phase)
}

func TestForcedStopDiscardsQueueAndFails(t *testing.T) {
	cfg := testConfig()
	cfg.Realtime = true
	cfg.SpeedFactor = 60
	cfg.NumAgents = 50

	mem := store.NewMemory()
	clock, err := NewRealtimeClock(cfg.SpeedFactor)
	require.NoError(t, err)
	e := New(cfg, mem, clock, rand.New(rand.NewSource(9)), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	stopAt := time.Now()
	e.Stop(StopForced)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("forced stop did not finish in time")
	}

	assert.Less(t, time.Since(stopAt), 6*time.Second)
	assert.Equal(t, PhaseFailed, e.Status().Phase)
	assert.Equal(t, store.RunFailed, mem.Runs[e.Status().RunID].Status)
	assert.Zero(t, e.Status().QueueLen)

	wallStop := time.Now()
	for _, ev := range mem.Events {
		assert.False(t, ev.ProcessedAt.After(wallStop))
	}
}

func TestQueueCapViolationFailsRun(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueue = 3
	cfg.BackpressureThreshold = 3

	e, mem := runEngine(t, cfg, []*agents.Person{
		testPerson(agents.Teacher), testPerson(agents.Teacher), testPerson(agents.Teacher),
	})

	assert.Equal(t, PhaseFailed, e.Status().Phase)
	assert.Equal(t, store.RunFailed, mem.Runs[e.Status().RunID].Status)
}

func TestFanOutRespectsPerMinuteBudget(t *testing.T) {
	cfg := testConfig()
	cfg.FanoutBudgetPerMin = 2

	mem := store.NewMemory()
	e := New(cfg, mem, NewFastClock(), rand.New(rand.NewSource(5)), zerolog.Nop())
	e.tables = refdata.Defaults()
	e.committer = NewCommitter(mem, zerolog.Nop(), 100, time.Second, 1000, 5)
	for i := 0; i < 7; i++ {
		p := testPerson(agents.Artist)
		e.people = append(e.people, p)
		e.byID[p.ID] = p
	}

	tr, err := trends.New(uuid.New(), e.people[0].ID, trends.TopicCulture, 2.0,
		trends.CoverageMiddle, trends.SentimentPositive, nil, 100)
	require.NoError(t, err)
	e.fanOut(tr, 100)

	perMinute := make(map[int]int)
	for ev := e.queue.Pop(); ev != nil; ev = e.queue.Pop() {
		require.Equal(t, KindTrendInfluence, ev.Kind)
		perMinute[int(ev.Time)]++
	}
	total := 0
	for minute, n := range perMinute {
		assert.LessOrEqual(t, n, cfg.FanoutBudgetPerMin, "minute %d", minute)
		total += n
	}
	assert.Equal(t, 6, total, "one influence per non-originator participant")
}

func TestStatusSnapshot(t *testing.T) {
	cfg := testConfig()
	e, _ := runEngine(t, cfg, []*agents.Person{testPerson(agents.Doctor)})

	st := e.Status()
	assert.NotEqual(t, uuid.Nil, st.RunID)
	assert.Equal(t, cfg.SimMinutes(), st.SimTime)
	assert.Greater(t, st.EventsProcessed, int64(0))
	assert.Zero(t, st.QueueLen)
}

func TestStatusReadableWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.NumAgents = 20

	mem := store.NewMemory()
	e := New(cfg, mem, NewFastClock(), rand.New(rand.NewSource(13)), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()

	// Poll from a second goroutine for the whole run. Under -race this
	// catches unguarded loop-state reads in Status.
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			st := e.Status()
			assert.NotEqual(t, uuid.Nil, st.RunID)
			assert.Equal(t, PhaseCompleted, st.Phase)
			return
		default:
			_ = e.Status()
		}
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NumAgents = 0
	e := New(cfg, store.NewMemory(), NewFastClock(), rand.New(rand.NewSource(1)), zerolog.Nop())
	assert.Error(t, e.Start(context.Background()))
}
