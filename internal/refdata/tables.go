// Package refdata holds the static reference tables: profession→topic
// affinities, per-profession interest and attribute ranges, and the
// topic↔interest-category mapping. The compiled defaults are the values the
// bundled store seeds; a Repository may serve overriding rows.
package refdata

import (
	"fmt"

	"capsim/internal/agents"
	"capsim/internal/trends"
)

// Range is an inclusive [Min, Max] generation interval.
type Range struct {
	Min float64
	Max float64
}

// Tables bundles every reference lookup a run needs. Loaded once at startup;
// read-only afterwards.
type Tables struct {
	Affinity        map[agents.Profession]map[trends.Topic]float64
	InterestRanges  map[agents.Profession]map[agents.InterestCategory]Range
	AttributeRanges map[agents.Profession]map[agents.Attribute]Range
	TopicCategory   map[trends.Topic]agents.InterestCategory
}

// AffinityFor returns the profession's affinity for a topic (2.5 default for
// missing pairs).
func (t *Tables) AffinityFor(p agents.Profession, topic trends.Topic) float64 {
	if row, ok := t.Affinity[p]; ok {
		if v, ok := row[topic]; ok {
			return v
		}
	}
	return 2.5
}

// AffinityRow returns the full topic→weight row for a profession.
func (t *Tables) AffinityRow(p agents.Profession) map[trends.Topic]float64 {
	return t.Affinity[p]
}

// AttributeRange implements agents.ReferenceRanges.
func (t *Tables) AttributeRange(p agents.Profession, a agents.Attribute) (float64, float64) {
	if row, ok := t.AttributeRanges[p]; ok {
		if r, ok := row[a]; ok {
			return r.Min, r.Max
		}
	}
	return 0, 5
}

// InterestRange implements agents.ReferenceRanges.
func (t *Tables) InterestRange(p agents.Profession, c agents.InterestCategory) (float64, float64) {
	if row, ok := t.InterestRanges[p]; ok {
		if r, ok := row[c]; ok {
			return r.Min, r.Max
		}
	}
	return 0, 5
}

// CategoryTopics inverts the topic→category mapping.
func (t *Tables) CategoryTopics() map[agents.InterestCategory][]trends.Topic {
	out := make(map[agents.InterestCategory][]trends.Topic)
	for _, topic := range trends.AllTopics() {
		c := t.TopicCategory[topic]
		out[c] = append(out[c], topic)
	}
	return out
}

// Validate checks the tables cover every profession, topic, and category.
func (t *Tables) Validate() error {
	for _, p := range agents.AllProfessions() {
		row, ok := t.Affinity[p]
		if !ok {
			return fmt.Errorf("affinity map: missing profession %s", p)
		}
		for _, topic := range trends.AllTopics() {
			if _, ok := row[topic]; !ok {
				return fmt.Errorf("affinity map: missing (%s, %s)", p, topic)
			}
		}
		ir, ok := t.InterestRanges[p]
		if !ok {
			return fmt.Errorf("interest ranges: missing profession %s", p)
		}
		for _, c := range agents.AllInterestCategories() {
			if _, ok := ir[c]; !ok {
				return fmt.Errorf("interest ranges: missing (%s, %s)", p, c)
			}
		}
		ar, ok := t.AttributeRanges[p]
		if !ok {
			return fmt.Errorf("attribute ranges: missing profession %s", p)
		}
		for _, a := range []agents.Attribute{
			agents.AttrFinancialCapability, agents.AttrTrendReceptivity,
			agents.AttrSocialStatus, agents.AttrEnergyLevel, agents.AttrTimeBudget,
		} {
			if _, ok := ar[a]; !ok {
				return fmt.Errorf("attribute ranges: missing (%s, %s)", p, a)
			}
		}
	}
	for _, topic := range trends.AllTopics() {
		if _, ok := t.TopicCategory[topic]; !ok {
			return fmt.Errorf("topic mapping: missing topic %s", topic)
		}
	}
	return nil
}
