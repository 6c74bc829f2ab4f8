// Package agents provides the agent data model, decision function, and
// population spawner.
package agents

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"capsim/internal/trends"
)

// Attribute names a dynamic scalar on a person. The values are the names
// used in attribute history rows.
type Attribute string

const (
	AttrFinancialCapability Attribute = "financial_capability"
	AttrTrendReceptivity    Attribute = "trend_receptivity"
	AttrSocialStatus        Attribute = "social_status"
	AttrEnergyLevel         Attribute = "energy_level"
	AttrTimeBudget          Attribute = "time_budget"

	// AttrInterestKnowledge tracks self-development effects on the
	// Knowledge interest in attribute history.
	AttrInterestKnowledge Attribute = "interest_knowledge"
)

// Change is one applied attribute delta, recorded for attribute history.
// Delta is exactly New − Old.
type Change struct {
	Attribute   Attribute
	Old         float64
	New         float64
	Delta       float64
	Reason      string
	SourceTrend *uuid.UUID
	SimTime     float64
}

// ActionKind identifies a discretionary agent action.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionPublishPost
	ActionPurchase
	ActionSelfDev
)

func (k ActionKind) String() string {
	switch k {
	case ActionPublishPost:
		return "PublishPost"
	case ActionPurchase:
		return "Purchase"
	case ActionSelfDev:
		return "SelfDev"
	}
	return "None"
}

// Action is the outcome of a decision.
type Action struct {
	Kind  ActionKind
	Topic trends.Topic // publish only
	Level int          // purchase only
	Score float64
}

// ActionRules carries the configurable gates for decisions.
type ActionRules struct {
	ScoreThreshold     float64
	PostCooldownMin    float64
	SelfDevCooldownMin float64
	PurchaseCooldown   float64
	PurchaseLevels     []int           // ascending, e.g. 1, 2, 3
	PurchaseCaps       map[int]int     // level → max per day
	PurchaseGates      map[int]float64 // level → min financial_capability
}

// DecisionContext is everything a person needs to decide an action.
type DecisionContext struct {
	Now            float64
	Affinity       map[trends.Topic]float64            // this profession's row
	CategoryTopics map[InterestCategory][]trends.Topic // interest category → topics
	Rules          ActionRules
	Rand           *rand.Rand
}

// Person is a simulation agent. Identity and personal metadata are global and
// immutable; the attribute block and the per-run state evolve during a run.
type Person struct {
	ID         uuid.UUID
	Profession Profession

	FirstName string
	LastName  string
	Gender    string
	BirthDate time.Time
	CreatedAt time.Time

	FinancialCapability float64
	TrendReceptivity    float64
	SocialStatus        float64
	EnergyLevel         float64
	TimeBudget          float64 // one-decimal numeric, 0.5 step
	Interests           Interests

	// Per-run participant state.
	ExposureHistory map[uuid.UUID]float64 // trend → sim-time of last exposure
	LastPostTS      float64
	LastSelfDevTS   float64
	LastPurchaseTS  map[int]float64 // level → sim-time
	PurchasesToday  map[int]int     // level → count
	ActionsToday    int
}

// ResetParticipantState initializes the per-run counters and history.
func (p *Person) ResetParticipantState() {
	p.ExposureHistory = make(map[uuid.UUID]float64)
	p.LastPostTS = -math.MaxFloat64
	p.LastSelfDevTS = -math.MaxFloat64
	p.LastPurchaseTS = make(map[int]float64)
	p.PurchasesToday = make(map[int]int)
	p.ActionsToday = 0
}

// ResetDay clears the day-scoped counters. Cooldown timestamps survive.
func (p *Person) ResetDay() {
	p.PurchasesToday = make(map[int]int)
	p.ActionsToday = 0
}

// Attribute returns the current value of a scalar attribute.
func (p *Person) Attribute(a Attribute) float64 {
	switch a {
	case AttrFinancialCapability:
		return p.FinancialCapability
	case AttrTrendReceptivity:
		return p.TrendReceptivity
	case AttrSocialStatus:
		return p.SocialStatus
	case AttrEnergyLevel:
		return p.EnergyLevel
	case AttrTimeBudget:
		return p.TimeBudget
	}
	return 0
}

func (p *Person) setAttribute(a Attribute, v float64) {
	switch a {
	case AttrFinancialCapability:
		p.FinancialCapability = v
	case AttrTrendReceptivity:
		p.TrendReceptivity = v
	case AttrSocialStatus:
		p.SocialStatus = v
	case AttrEnergyLevel:
		p.EnergyLevel = v
	case AttrTimeBudget:
		p.TimeBudget = v
	}
}

// RoundTimeBudget snaps a time budget value to the nearest 0.5 step.
func RoundTimeBudget(v float64) float64 {
	return math.Round(v*2) / 2
}

// ApplyUpdate applies a map of attribute deltas, clamping every result to
// [0, 5] and snapping time_budget to its 0.5 step. One Change is returned per
// attribute that actually moved, with Delta exactly New − Old. Attributes are
// processed in sorted order so history output is deterministic.
func (p *Person) ApplyUpdate(deltas map[Attribute]float64, reason string, sourceTrend *uuid.UUID, simTime float64) []Change {
	attrs := make([]string, 0, len(deltas))
	for a := range deltas {
		attrs = append(attrs, string(a))
	}
	sort.Strings(attrs)

	changes := make([]Change, 0, len(attrs))
	for _, name := range attrs {
		a := Attribute(name)
		old := p.Attribute(a)
		next := clamp(old+deltas[a], 0, 5)
		if a == AttrTimeBudget {
			next = clamp(RoundTimeBudget(next), 0, 5)
		}
		if next == old {
			continue
		}
		p.setAttribute(a, next)
		changes = append(changes, Change{
			Attribute:   a,
			Old:         old,
			New:         next,
			Delta:       next - old,
			Reason:      reason,
			SourceTrend: sourceTrend,
			SimTime:     simTime,
		})
	}
	return changes
}

// ApplyInterestDelta shifts one interest category, clamped to [0, 5], and
// returns the Change (ok=false when nothing moved).
func (p *Person) ApplyInterestDelta(c InterestCategory, delta float64, reason string, simTime float64) (Change, bool) {
	old := p.Interests.Get(c)
	p.Interests.Set(c, old+delta)
	next := p.Interests.Get(c)
	if next == old {
		return Change{}, false
	}
	attr := AttrInterestKnowledge
	if c != InterestKnowledge {
		attr = Attribute("interest_" + string(c))
	}
	return Change{
		Attribute: attr,
		Old:       old,
		New:       next,
		Delta:     next - old,
		Reason:    reason,
		SimTime:   simTime,
	}, true
}

// CanPerform checks the gates for an action kind at the given time.
// For ActionPurchase it reports whether any level is currently available.
func (p *Person) CanPerform(kind ActionKind, now float64, rules ActionRules) bool {
	switch kind {
	case ActionPublishPost:
		return p.EnergyLevel >= 1.0 &&
			p.TimeBudget >= 1.0 &&
			p.TrendReceptivity > 0 &&
			now-p.LastPostTS >= rules.PostCooldownMin
	case ActionPurchase:
		return p.availablePurchaseLevel(now, rules) != 0
	case ActionSelfDev:
		return p.EnergyLevel >= 1.0 &&
			p.TimeBudget >= 1.0 &&
			now-p.LastSelfDevTS >= rules.SelfDevCooldownMin
	}
	return false
}

// CanPurchaseLevel reports whether one specific level is available now.
func (p *Person) CanPurchaseLevel(level int, now float64, rules ActionRules) bool {
	if p.EnergyLevel < 1.0 {
		return false
	}
	if p.FinancialCapability < rules.PurchaseGates[level] {
		return false
	}
	if p.PurchasesToday[level] >= rules.PurchaseCaps[level] {
		return false
	}
	if last, ok := p.LastPurchaseTS[level]; ok && now-last < rules.PurchaseCooldown {
		return false
	}
	return true
}

// availablePurchaseLevel returns the highest affordable level whose daily cap
// and cooldown permit a purchase now, or 0 when none qualifies.
func (p *Person) availablePurchaseLevel(now float64, rules ActionRules) int {
	if p.EnergyLevel < 1.0 {
		return 0
	}
	for i := len(rules.PurchaseLevels) - 1; i >= 0; i-- {
		level := rules.PurchaseLevels[i]
		if p.FinancialCapability < rules.PurchaseGates[level] {
			continue
		}
		if p.PurchasesToday[level] >= rules.PurchaseCaps[level] {
			continue
		}
		if last, ok := p.LastPurchaseTS[level]; ok && now-last < rules.PurchaseCooldown {
			continue
		}
		return level
	}
	return 0
}

// BestTopic maps the agent's strongest interest category to a trend topic.
// When a category maps to several topics (Society covers both Conspiracy and
// Sport) the one with the higher profession affinity wins, ties breaking
// lexicographically.
func (p *Person) BestTopic(affinity map[trends.Topic]float64, categoryTopics map[InterestCategory][]trends.Topic) trends.Topic {
	candidates := categoryTopics[p.Interests.Best()]
	if len(candidates) == 0 {
		return trends.TopicEconomic
	}
	best := candidates[0]
	for _, t := range candidates[1:] {
		switch {
		case affinity[t] > affinity[best]:
			best = t
		case affinity[t] == affinity[best] && t < best:
			best = t
		}
	}
	return best
}

// DecideAction chooses at most one discretionary action. Publish is tried
// first, then purchase, then self-development; each has its own gates and a
// score that must clear Rules.ScoreThreshold.
func (p *Person) DecideAction(ctx DecisionContext) (Action, bool) {
	if p.EnergyLevel <= 0 || p.TimeBudget <= 0 {
		return Action{}, false
	}

	if p.CanPerform(ActionPublishPost, ctx.Now, ctx.Rules) {
		topic := p.BestTopic(ctx.Affinity, ctx.CategoryTopics)
		interest := p.interestInTopic(topic, ctx.CategoryTopics)
		score := (0.5*interest/5.0 +
			0.3*p.SocialStatus/5.0 +
			0.2*ctx.Rand.Float64()) * ctx.Affinity[topic] / 5.0
		if score >= ctx.Rules.ScoreThreshold {
			return Action{Kind: ActionPublishPost, Topic: topic, Score: score}, true
		}
	}

	if level := p.availablePurchaseLevel(ctx.Now, ctx.Rules); level != 0 {
		score := 0.5*p.FinancialCapability/5.0 +
			0.3*p.SocialStatus/5.0 +
			0.2*ctx.Rand.Float64()
		if score >= ctx.Rules.ScoreThreshold {
			return Action{Kind: ActionPurchase, Level: level, Score: score}, true
		}
	}

	if p.CanPerform(ActionSelfDev, ctx.Now, ctx.Rules) {
		score := 0.5*p.Interests.Knowledge/5.0 +
			0.3*p.EnergyLevel/5.0 +
			0.2*ctx.Rand.Float64()
		if score >= ctx.Rules.ScoreThreshold {
			return Action{Kind: ActionSelfDev, Score: score}, true
		}
	}

	return Action{}, false
}

// interestInTopic returns the interest value backing a topic via the
// category mapping (2.5 for an unmapped topic).
func (p *Person) interestInTopic(topic trends.Topic, categoryTopics map[InterestCategory][]trends.Topic) float64 {
	for c, topicsFor := range categoryTopics {
		for _, t := range topicsFor {
			if t == topic {
				return p.Interests.Get(c)
			}
		}
	}
	return 2.5
}

// ExposureEffect carries the configurable coefficients for trend exposure.
type ExposureEffect struct {
	CooldownMin   float64 // minimum sim-minutes between effective exposures
	ReceptivityK1 float64
	EnergyK2      float64
}

// ExposedTo records an exposure to a trend. The exposure history always
// retains the most recent time for the pair; attribute effects apply only
// when the previous exposure is at least CooldownMin old (or absent).
func (p *Person) ExposedTo(t *trends.Trend, now, affinity float64, eff ExposureEffect) []Change {
	last, seen := p.ExposureHistory[t.ID]
	p.ExposureHistory[t.ID] = now
	if seen && now-last < eff.CooldownMin {
		return nil
	}

	id := t.ID
	return p.ApplyUpdate(map[Attribute]float64{
		AttrTrendReceptivity: eff.ReceptivityK1 * affinity / 5.0 * t.Coverage.Factor(),
		AttrEnergyLevel:      -eff.EnergyK2,
	}, "trend_exposure", &id, now)
}
