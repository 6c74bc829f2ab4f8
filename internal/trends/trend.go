// Package trends models the topical artifacts agents publish and interact with.
package trends

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Topic is the subject of a trend.
type Topic string

const (
	TopicEconomic   Topic = "Economic"
	TopicHealth     Topic = "Health"
	TopicSpiritual  Topic = "Spiritual"
	TopicConspiracy Topic = "Conspiracy"
	TopicScience    Topic = "Science"
	TopicCulture    Topic = "Culture"
	TopicSport      Topic = "Sport"
)

// AllTopics returns every trend topic in a stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicEconomic, TopicHealth, TopicSpiritual, TopicConspiracy,
		TopicScience, TopicCulture, TopicSport,
	}
}

// ValidTopic reports whether t is a known topic.
func ValidTopic(t Topic) bool {
	for _, known := range AllTopics() {
		if t == known {
			return true
		}
	}
	return false
}

// Coverage is the ordinal breadth of a trend's reach.
type Coverage string

const (
	CoverageLow    Coverage = "Low"
	CoverageMiddle Coverage = "Middle"
	CoverageHigh   Coverage = "High"
)

// Factor returns the numeric exposure multiplier for a coverage level.
func (c Coverage) Factor() float64 {
	switch c {
	case CoverageMiddle:
		return 0.6
	case CoverageHigh:
		return 1.0
	default:
		return 0.3
	}
}

// Sentiment is the tone of a trend.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
)

// Trend is a topical artifact created by a publish action. It is mutated only
// through interaction counting and coverage escalation.
type Trend struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	Topic        Topic
	OriginatorID uuid.UUID
	ParentID     *uuid.UUID

	StartTime float64 // sim-minutes
	CreatedAt time.Time

	BaseVirality      float64 // [0, 5]
	Coverage          Coverage
	TotalInteractions int
	Sentiment         Sentiment
}

// New creates a trend from a publish action.
func New(runID, originatorID uuid.UUID, topic Topic, baseVirality float64, coverage Coverage, sentiment Sentiment, parentID *uuid.UUID, startTime float64) (*Trend, error) {
	if !ValidTopic(topic) {
		return nil, fmt.Errorf("unknown trend topic %q", topic)
	}
	if sentiment != SentimentPositive && sentiment != SentimentNegative {
		return nil, fmt.Errorf("invalid sentiment %q", sentiment)
	}
	return &Trend{
		ID:           uuid.New(),
		RunID:        runID,
		Topic:        topic,
		OriginatorID: originatorID,
		ParentID:     parentID,
		StartTime:    startTime,
		CreatedAt:    time.Now().UTC(),
		BaseVirality: baseVirality,
		Coverage:     coverage,
		Sentiment:    sentiment,
	}, nil
}

// AddInteraction registers one interaction and escalates coverage when the
// counter crosses the given thresholds (Low→Middle at middleAt, Middle→High
// at highAt).
func (t *Trend) AddInteraction(middleAt, highAt int) {
	t.TotalInteractions++
	switch {
	case t.Coverage == CoverageLow && t.TotalInteractions >= middleAt:
		t.Coverage = CoverageMiddle
	case t.Coverage == CoverageMiddle && t.TotalInteractions >= highAt:
		t.Coverage = CoverageHigh
	}
}

// CurrentVirality derives the live virality score:
// base + 0.05·ln(total_interactions + 1), clamped to 5.
func (t *Trend) CurrentVirality() float64 {
	if t.TotalInteractions == 0 {
		return t.BaseVirality
	}
	v := t.BaseVirality + 0.05*math.Log(float64(t.TotalInteractions)+1)
	return math.Min(5.0, v)
}

// Active reports whether the trend started within thresholdDays of now.
func (t *Trend) Active(now float64, thresholdDays int) bool {
	return now-t.StartTime < float64(thresholdDays)*1440.0
}
