package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"capsim/internal/trends"
)

// Kind identifies the event types the scheduler dispatches.
type Kind string

const (
	KindDailyReset      Kind = "DailyReset"
	KindEnergyRecovery  Kind = "EnergyRecovery"
	KindSaveDailyTrends Kind = "SaveDailyTrends"
	KindDecideSweep     Kind = "DecideSweep"
	KindPublishPost     Kind = "PublishPost"
	KindPurchase        Kind = "Purchase"
	KindSelfDev         Kind = "SelfDev"
	KindTrendInfluence  Kind = "TrendInfluence"
)

// Scheduling priorities. The queue pops in ascending (priority, time, seq)
// order, so lower values dequeue first at equal timestamps.
const (
	PriorityLow         = 0
	PriorityAgentAction = 50
	PrioritySystem      = 100
)

// Event is a scheduled unit of work. Time is in simulation minutes.
type Event struct {
	ID       uuid.UUID
	Kind     Kind
	Priority int
	Time     float64

	// AgentID is set for agent actions and trend influences.
	AgentID uuid.UUID
	// TrendID is set for trend influences and replies.
	TrendID uuid.UUID
	// Topic is set for publish actions.
	Topic trends.Topic
	// Level is set for purchase actions.
	Level int

	seq uint64
}

// PriorityFor returns the scheduling priority of an event kind.
func PriorityFor(k Kind) int {
	switch k {
	case KindDailyReset, KindEnergyRecovery, KindSaveDailyTrends, KindDecideSweep:
		return PrioritySystem
	case KindPublishPost, KindPurchase, KindSelfDev, KindTrendInfluence:
		return PriorityAgentAction
	default:
		return PriorityLow
	}
}

// Discretionary reports whether an event is an optional agent action that
// backpressure and graceful drain may skip or defer.
func (e *Event) Discretionary() bool {
	switch e.Kind {
	case KindPurchase, KindSelfDev:
		return true
	}
	return false
}

// ActionTimestamp renders a sim time as the HH:MM time of day.
func ActionTimestamp(simTime float64) string {
	minOfDay := math.Mod(simTime, 1440)
	if minOfDay < 0 {
		minOfDay += 1440
	}
	return fmt.Sprintf("%02d:%02d", int(minOfDay)/60, int(minOfDay)%60)
}

// Day returns the zero-based simulated day a time falls in.
func Day(simTime float64) int {
	return int(simTime / 1440)
}
