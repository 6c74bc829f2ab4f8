package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterestsSetClamps(t *testing.T) {
	var i Interests
	i.Set(InterestEconomics, 7.3)
	assert.Equal(t, 5.0, i.Get(InterestEconomics))
	i.Set(InterestEconomics, -1.0)
	assert.Equal(t, 0.0, i.Get(InterestEconomics))
}

func TestInterestsGetUnknownCategory(t *testing.T) {
	var i Interests
	i.Set(InterestKnowledge, 3.0)
	assert.Equal(t, 0.0, i.Get(InterestCategory("Gossip")))
}

func TestInterestsBest(t *testing.T) {
	var i Interests
	for _, c := range AllInterestCategories() {
		i.Set(c, 2.5)
	}
	i.Set(InterestSpirituality, 4.1)
	assert.Equal(t, InterestSpirituality, i.Best())
}

func TestInterestsBestTiesLexicographic(t *testing.T) {
	var i Interests
	i.Set(InterestSociety, 4.0)
	i.Set(InterestCreativity, 4.0)
	assert.Equal(t, InterestCreativity, i.Best())
}
