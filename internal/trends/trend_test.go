package trends

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrend(t *testing.T, coverage Coverage) *Trend {
	tr, err := New(uuid.New(), uuid.New(), TopicScience, 2.0, coverage,
		SentimentPositive, nil, 0)
	require.NoError(t, err)
	return tr
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(uuid.New(), uuid.New(), Topic("Weather"), 2.0,
		CoverageLow, SentimentPositive, nil, 0)
	assert.Error(t, err)

	_, err = New(uuid.New(), uuid.New(), TopicSport, 2.0,
		CoverageLow, Sentiment("Neutral"), nil, 0)
	assert.Error(t, err)
}

func TestCoverageEscalation(t *testing.T) {
	tr := newTestTrend(t, CoverageLow)

	for i := 0; i < 49; i++ {
		tr.AddInteraction(50, 500)
	}
	assert.Equal(t, CoverageLow, tr.Coverage)
	assert.Equal(t, 0.3, tr.Coverage.Factor())

	tr.AddInteraction(50, 500)
	assert.Equal(t, CoverageMiddle, tr.Coverage)
	assert.Equal(t, 0.6, tr.Coverage.Factor())

	for tr.TotalInteractions < 500 {
		tr.AddInteraction(50, 500)
	}
	assert.Equal(t, CoverageHigh, tr.Coverage)
	assert.Equal(t, 1.0, tr.Coverage.Factor())
}

func TestCoverageNeverSkipsMiddle(t *testing.T) {
	tr := newTestTrend(t, CoverageLow)
	// A single interaction past both thresholds still lands on Middle first.
	tr.TotalInteractions = 600
	tr.AddInteraction(50, 500)
	assert.Equal(t, CoverageMiddle, tr.Coverage)
	tr.AddInteraction(50, 500)
	assert.Equal(t, CoverageHigh, tr.Coverage)
}

func TestCurrentVirality(t *testing.T) {
	tr := newTestTrend(t, CoverageMiddle)
	assert.Equal(t, 2.0, tr.CurrentVirality())

	tr.TotalInteractions = 99
	expected := 2.0 + 0.05*math.Log(100)
	assert.InDelta(t, expected, tr.CurrentVirality(), 1e-12)

	tr.BaseVirality = 4.99
	tr.TotalInteractions = 1_000_000
	assert.Equal(t, 5.0, tr.CurrentVirality())
}

func TestActiveThreshold(t *testing.T) {
	tr := newTestTrend(t, CoverageLow)
	tr.StartTime = 100

	assert.True(t, tr.Active(100, 3))
	assert.True(t, tr.Active(100+3*1440-1, 3))
	assert.False(t, tr.Active(100+3*1440, 3))
}

func TestAllTopicsStable(t *testing.T) {
	topics := AllTopics()
	assert.Len(t, topics, 7)
	for _, topic := range topics {
		assert.True(t, ValidTopic(topic))
	}
	assert.False(t, ValidTopic(Topic("Memes")))
}
