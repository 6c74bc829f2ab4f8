package engine

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"capsim/internal/agents"
	"capsim/internal/store"
	"capsim/internal/trends"
)

// Coverage escalation thresholds on total interactions.
const (
	coverageMiddleAt = 50
	coverageHighAt   = 500
)

// Attribute deltas applied by agent actions.
const (
	postEnergyCost = 0.2
	postTimeCost   = 0.1
	postSocialGain = 0.1

	selfDevKnowledgeGain = 0.1
	selfDevEnergyCost    = 0.4
	selfDevTimeCost      = 0.5

	purchaseEnergyCost = 0.1
)

// dispatch routes one popped event to its handler and records the processed
// event row.
func (e *Engine) dispatch(ev *Event) {
	now := ev.Time
	started := time.Now()
	switch ev.Kind {
	case KindDailyReset:
		e.handleDailyReset(now)
	case KindEnergyRecovery:
		e.handleEnergyRecovery(now)
	case KindSaveDailyTrends:
		e.handleSaveDailyTrends(now)
	case KindDecideSweep:
		e.handleDecideSweep(now)
	case KindPublishPost:
		e.handlePublishPost(ev, now)
	case KindTrendInfluence:
		e.handleTrendInfluence(ev, now)
	case KindPurchase:
		e.handlePurchase(ev, now)
	case KindSelfDev:
		e.handleSelfDev(ev, now)
	default:
		e.log.Warn().Str("kind", string(ev.Kind)).Msg("unknown event kind dropped")
		return
	}
	elapsed := time.Since(started)
	e.observeDispatch(elapsed)

	row := store.EventRow{
		ID:                   ev.ID,
		RunID:                e.runID,
		Kind:                 string(ev.Kind),
		Priority:             ev.Priority,
		SimTime:              now,
		ActionTimestamp:      ActionTimestamp(now),
		ProcessingDurationMs: float64(elapsed.Nanoseconds()) / 1e6,
		ProcessedAt:          time.Now().UTC(),
	}
	if ev.AgentID != uuid.Nil {
		id := ev.AgentID
		row.AgentID = &id
	}
	if ev.TrendID != uuid.Nil {
		id := ev.TrendID
		row.TrendID = &id
	}
	e.committer.AddEvent(row)
}

// handleDailyReset clears per-day counters and re-rolls each agent's time
// budget within its profession range.
func (e *Engine) handleDailyReset(now float64) {
	for _, p := range e.people {
		p.ResetDay()

		lo, hi := e.tables.AttributeRange(p.Profession, agents.AttrTimeBudget)
		target := agents.RoundTimeBudget(lo + e.rng.Float64()*(hi-lo))
		changes := p.ApplyUpdate(map[agents.Attribute]float64{
			agents.AttrTimeBudget: target - p.TimeBudget,
		}, "daily_reset", nil, now)
		e.bufferAgent(p, now, changes)
	}
	if !e.draining {
		e.schedule(KindDailyReset, now+1440, nil)
	}
}

// handleEnergyRecovery tops up every agent below the energy ceiling.
func (e *Engine) handleEnergyRecovery(now float64) {
	for _, p := range e.people {
		if p.EnergyLevel >= 5 {
			continue
		}
		changes := p.ApplyUpdate(map[agents.Attribute]float64{
			agents.AttrEnergyLevel: e.cfg.EnergyRecoveryDelta,
		}, "energy_recovery", nil, now)
		e.bufferAgent(p, now, changes)
	}
	if !e.draining {
		e.schedule(KindEnergyRecovery, now+e.cfg.EnergyRecoveryInterval, nil)
	}
}

// handleSaveDailyTrends writes per-topic aggregates for the day just ended
// and archives trends past the retention window.
func (e *Engine) handleSaveDailyTrends(now float64) {
	day := Day(now - 1)

	type agg struct {
		count        int
		interactions int64
		viralitySum  float64
		top          *trends.Trend
	}
	byTopic := make(map[trends.Topic]*agg)
	for _, t := range e.liveTrends {
		a := byTopic[t.Topic]
		if a == nil {
			a = &agg{}
			byTopic[t.Topic] = a
		}
		a.count++
		a.interactions += int64(t.TotalInteractions)
		a.viralitySum += t.CurrentVirality()
		if a.top == nil || t.TotalInteractions > a.top.TotalInteractions {
			a.top = t
		}
	}

	rows := make([]store.DailyTrendSummaryRow, 0, len(byTopic))
	for topic, a := range byTopic {
		row := store.DailyTrendSummaryRow{
			RunID:             e.runID,
			Day:               day,
			Topic:             string(topic),
			ActiveTrends:      a.count,
			TotalInteractions: a.interactions,
			AvgVirality:       a.viralitySum / float64(a.count),
		}
		if a.top != nil {
			id := a.top.ID
			row.TopTrendID = &id
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.repo.SaveDailyTrendSummaries(ctx, rows); err != nil {
			e.log.Warn().Err(err).Int("day", day).Msg("daily trend summary write failed")
		}
		cancel()
	}

	for id, t := range e.liveTrends {
		if t.Active(now, int(e.cfg.TrendArchiveDays)) {
			continue
		}
		row := trendRow(e.runID, t)
		row.Archived = true
		e.committer.AddTrend(row)
		delete(e.liveTrends, id)
	}

	if !e.draining {
		e.schedule(KindSaveDailyTrends, now+1440, nil)
	}
}

// handleDecideSweep gives each agent a chance to schedule its next
// discretionary action. Attempt probability is the agent's remaining daily
// deficit spread over the sweeps left today, scaled by time budget relative
// to the population mean.
func (e *Engine) handleDecideSweep(now float64) {
	if e.draining {
		return
	}
	e.schedule(KindDecideSweep, now+e.cfg.DecideIntervalMin, nil)

	headroom := e.cfg.MaxQueue - e.queue.Len()
	if headroom <= len(e.people) {
		return
	}
	backpressure := e.queue.Len() >= e.cfg.BackpressureThreshold

	dayEnd := float64(Day(now)+1) * 1440
	sweepsLeft := math.Max(1, (dayEnd-now)/e.cfg.DecideIntervalMin)

	for _, p := range e.people {
		target := e.cfg.TargetActionsPerDay * p.TimeBudget / e.meanTimeBudget
		deficit := target - float64(p.ActionsToday)
		if deficit <= 0 {
			continue
		}
		prob := deficit / sweepsLeft
		if prob < 1 && e.rng.Float64() >= prob {
			continue
		}

		action, ok := p.DecideAction(agents.DecisionContext{
			Now:            now,
			Affinity:       e.tables.AffinityRow(p.Profession),
			CategoryTopics: e.catTopics,
			Rules:          e.rules,
			Rand:           e.rng,
		})
		if !ok {
			continue
		}
		if backpressure && action.Kind != agents.ActionPublishPost {
			continue
		}

		at := now + 1 + e.rng.Float64()*29
		agentID := p.ID
		switch action.Kind {
		case agents.ActionPublishPost:
			topic := action.Topic
			e.schedule(KindPublishPost, at, func(ev *Event) {
				ev.AgentID = agentID
				ev.Topic = topic
			})
		case agents.ActionPurchase:
			level := action.Level
			e.schedule(KindPurchase, at, func(ev *Event) {
				ev.AgentID = agentID
				ev.Level = level
			})
		case agents.ActionSelfDev:
			e.schedule(KindSelfDev, at, func(ev *Event) {
				ev.AgentID = agentID
			})
		}
	}
}

// handlePublishPost creates a trend from the action and fans influence out
// to the rest of the population. Gates are re-checked at dispatch time since
// the agent's state may have moved since the action was scheduled.
func (e *Engine) handlePublishPost(ev *Event, now float64) {
	trigger := ev.TrendID
	ev.TrendID = uuid.Nil

	p := e.byID[ev.AgentID]
	if p == nil || !p.CanPerform(agents.ActionPublishPost, now, e.rules) {
		return
	}

	parent := e.parentTrend(ev.Topic, p.ID)
	if trigger != uuid.Nil {
		// A response always threads under the trend that provoked it.
		id := trigger
		parent = &id
	}

	affinity := e.tables.AffinityFor(p.Profession, ev.Topic)
	t, err := trends.New(
		e.runID, p.ID, ev.Topic,
		baseVirality(p, affinity),
		initialCoverage(p),
		e.pickSentiment(),
		parent,
		now,
	)
	if err != nil {
		e.log.Warn().Err(err).Str("agent", p.ID.String()).Msg("publish rejected")
		return
	}
	e.liveTrends[t.ID] = t
	ev.TrendID = t.ID

	changes := p.ApplyUpdate(map[agents.Attribute]float64{
		agents.AttrEnergyLevel:  -postEnergyCost,
		agents.AttrTimeBudget:   -postTimeCost,
		agents.AttrSocialStatus: postSocialGain,
	}, "publish_post", nil, now)
	p.LastPostTS = now
	p.ActionsToday++
	e.actionsCount.Add(1)

	e.bufferAgent(p, now, changes)
	e.committer.AddTrend(trendRow(e.runID, t))
	e.fanOut(t, now)
}

// fanOut schedules TrendInfluence events for every participant except the
// originator, spread across sim-minutes under the per-minute budget. When
// the queue nears the backpressure threshold the remainder is dropped.
func (e *Engine) fanOut(t *trends.Trend, now float64) {
	inMinute := 0
	minuteOffset := 0.0
	dropped := 0
	for _, p := range e.people {
		if p.ID == t.OriginatorID {
			continue
		}
		if e.queue.Len() >= e.cfg.BackpressureThreshold {
			dropped++
			continue
		}
		if inMinute >= e.cfg.FanoutBudgetPerMin {
			minuteOffset++
			inMinute = 0
		}
		agentID := p.ID
		trendID := t.ID
		e.schedule(KindTrendInfluence, now+minuteOffset+e.rng.Float64(), func(ev *Event) {
			ev.AgentID = agentID
			ev.TrendID = trendID
		})
		inMinute++
	}
	if dropped > 0 {
		e.log.Debug().Int("dropped", dropped).Str("trend", t.ID.String()).Msg("fan-out truncated by backpressure")
	}
}

// handleTrendInfluence applies one exposure: the interaction always counts,
// attribute effects obey the exposure cooldown.
func (e *Engine) handleTrendInfluence(ev *Event, now float64) {
	p := e.byID[ev.AgentID]
	t := e.liveTrends[ev.TrendID]
	if p == nil || t == nil {
		return
	}

	affinity := e.tables.AffinityFor(p.Profession, t.Topic)
	changes := p.ExposedTo(t, now, affinity, e.exposure)
	t.AddInteraction(coverageMiddleAt, coverageHighAt)

	if len(changes) > 0 {
		e.maybeScheduleResponse(p, t, now)
	}

	e.bufferAgent(p, now, changes)
	e.committer.AddTrend(trendRow(e.runID, t))
}

// maybeScheduleResponse lets a freshly influenced agent post back into the
// trend's topic. Chance grows with the trend's virality and the agent's
// social status; the reply lands 10 to 60 sim-minutes later, threaded under
// the trend that provoked it.
func (e *Engine) maybeScheduleResponse(p *agents.Person, t *trends.Trend, now float64) {
	if e.draining || e.queue.Len() >= e.cfg.BackpressureThreshold {
		return
	}
	if p.EnergyLevel < 0.5 {
		return
	}
	if float64(p.ActionsToday) >= e.cfg.TargetActionsPerDay*p.TimeBudget/e.meanTimeBudget {
		return
	}

	strength := math.Min(0.5, t.CurrentVirality()*0.2)
	prob := strength * p.SocialStatus / 5.0 * 0.6
	if e.rng.Float64() >= prob {
		return
	}

	agentID := p.ID
	trendID := t.ID
	topic := t.Topic
	e.schedule(KindPublishPost, now+10+e.rng.Float64()*50, func(ev *Event) {
		ev.AgentID = agentID
		ev.Topic = topic
		ev.TrendID = trendID
	})
	t.AddInteraction(coverageMiddleAt, coverageHighAt)
}

// handlePurchase applies a leveled purchase if the level is still available.
func (e *Engine) handlePurchase(ev *Event, now float64) {
	p := e.byID[ev.AgentID]
	if p == nil || !p.CanPurchaseLevel(ev.Level, now, e.rules) {
		return
	}

	changes := p.ApplyUpdate(map[agents.Attribute]float64{
		agents.AttrFinancialCapability: -purchaseCost(ev.Level),
		agents.AttrEnergyLevel:         -purchaseEnergyCost,
	}, "purchase", nil, now)
	p.PurchasesToday[ev.Level]++
	p.LastPurchaseTS[ev.Level] = now
	p.ActionsToday++
	e.actionsCount.Add(1)

	e.bufferAgent(p, now, changes)
}

// handleSelfDev improves the knowledge interest at an energy and time cost.
func (e *Engine) handleSelfDev(ev *Event, now float64) {
	p := e.byID[ev.AgentID]
	if p == nil || !p.CanPerform(agents.ActionSelfDev, now, e.rules) {
		return
	}

	changes := p.ApplyUpdate(map[agents.Attribute]float64{
		agents.AttrEnergyLevel: -selfDevEnergyCost,
		agents.AttrTimeBudget:  -selfDevTimeCost,
	}, "self_dev", nil, now)
	if ch, ok := p.ApplyInterestDelta(agents.InterestKnowledge, selfDevKnowledgeGain, "self_dev", now); ok {
		changes = append(changes, ch)
	}
	p.LastSelfDevTS = now
	p.ActionsToday++
	e.actionsCount.Add(1)

	e.bufferAgent(p, now, changes)
}

// bufferAgent queues the agent's current snapshot and any attribute history
// produced this dispatch.
func (e *Engine) bufferAgent(p *agents.Person, now float64, changes []agents.Change) {
	if len(changes) == 0 {
		return
	}
	interests, _ := json.Marshal(p.Interests)
	e.committer.AddParticipant(store.ParticipantRow{
		PersonID:            p.ID,
		RunID:               e.runID,
		FinancialCapability: p.FinancialCapability,
		TrendReceptivity:    p.TrendReceptivity,
		SocialStatus:        p.SocialStatus,
		EnergyLevel:         p.EnergyLevel,
		TimeBudget:          p.TimeBudget,
		InterestsJSON:       string(interests),
		LastActiveSimTime:   now,
	})
	for _, ch := range changes {
		e.committer.AddHistory(store.AttributeHistoryRow{
			ID:          uuid.New(),
			RunID:       e.runID,
			PersonID:    p.ID,
			Attribute:   string(ch.Attribute),
			OldValue:    ch.Old,
			NewValue:    ch.New,
			Delta:       ch.Delta,
			Reason:      ch.Reason,
			SourceTrend: ch.SourceTrend,
			SimTime:     ch.SimTime,
		})
	}
}

// parentTrend links a new post to the most interacted trend of the same
// topic. The author's own trends and trends nobody has interacted with yet
// are not viable parents.
func (e *Engine) parentTrend(topic trends.Topic, authorID uuid.UUID) *uuid.UUID {
	var best *trends.Trend
	for _, t := range e.liveTrends {
		if t.Topic != topic || t.OriginatorID == authorID || t.TotalInteractions == 0 {
			continue
		}
		if best == nil || t.TotalInteractions > best.TotalInteractions {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}

func (e *Engine) pickSentiment() trends.Sentiment {
	if e.rng.Float64() < 0.5 {
		return trends.SentimentNegative
	}
	return trends.SentimentPositive
}

// baseVirality derives a new trend's starting virality from its author:
// 0.4·social + 0.3·receptivity + 0.5·affinity/5 + 0.5, capped at 3.
func baseVirality(p *agents.Person, affinity float64) float64 {
	v := 0.4*p.SocialStatus + 0.3*p.TrendReceptivity + 0.5*affinity/5.0 + 0.5
	return math.Min(3.0, v)
}

// initialCoverage maps author standing to starting breadth.
func initialCoverage(p *agents.Person) trends.Coverage {
	switch {
	case p.FinancialCapability >= 4:
		return trends.CoverageHigh
	case p.SocialStatus < 1.5:
		return trends.CoverageLow
	default:
		return trends.CoverageMiddle
	}
}

// purchaseCost returns the financial_capability cost of a purchase level.
func purchaseCost(level int) float64 {
	switch level {
	case 1:
		return 0.1
	case 2:
		return 0.25
	case 3:
		return 0.5
	}
	return 0.1 * float64(level)
}

func trendRow(runID uuid.UUID, t *trends.Trend) store.TrendRow {
	return store.TrendRow{
		ID:                t.ID,
		RunID:             runID,
		Topic:             string(t.Topic),
		OriginatorID:      t.OriginatorID,
		ParentID:          t.ParentID,
		StartSimTime:      t.StartTime,
		BaseVirality:      t.BaseVirality,
		CurrentVirality:   t.CurrentVirality(),
		Coverage:          string(t.Coverage),
		Sentiment:         string(t.Sentiment),
		TotalInteractions: int64(t.TotalInteractions),
	}
}
