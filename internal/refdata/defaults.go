package refdata

import (
	"capsim/internal/agents"
	"capsim/internal/trends"
)

// Defaults returns the compiled-in reference tables. The sqlite store seeds
// these rows on first open so later runs can load (and operators can tweak)
// them from the database.
func Defaults() *Tables {
	return &Tables{
		Affinity:        defaultAffinity(),
		InterestRanges:  defaultInterestRanges(),
		AttributeRanges: defaultAttributeRanges(),
		TopicCategory:   defaultTopicCategory(),
	}
}

func defaultTopicCategory() map[trends.Topic]agents.InterestCategory {
	return map[trends.Topic]agents.InterestCategory{
		trends.TopicEconomic:   agents.InterestEconomics,
		trends.TopicHealth:     agents.InterestWellbeing,
		trends.TopicSpiritual:  agents.InterestSpirituality,
		trends.TopicConspiracy: agents.InterestSociety,
		trends.TopicScience:    agents.InterestKnowledge,
		trends.TopicCulture:    agents.InterestCreativity,
		trends.TopicSport:      agents.InterestSociety,
	}
}

func defaultAffinity() map[agents.Profession]map[trends.Topic]float64 {
	byTopic := map[trends.Topic]map[agents.Profession]float64{
		trends.TopicEconomic: {
			agents.ShopClerk: 4.8, agents.Worker: 3.2, agents.Developer: 2.1,
			agents.Politician: 3.8, agents.Blogger: 2.5, agents.Businessman: 4.9,
			agents.Doctor: 2.0, agents.Teacher: 2.3, agents.Unemployed: 1.8,
			agents.Artist: 1.9, agents.SpiritualMentor: 1.5, agents.Philosopher: 2.2,
		},
		trends.TopicHealth: {
			agents.ShopClerk: 1.2, agents.Worker: 1.8, agents.Developer: 1.6,
			agents.Politician: 2.4, agents.Blogger: 1.9, agents.Businessman: 1.4,
			agents.Doctor: 4.8, agents.Teacher: 2.8, agents.Unemployed: 2.1,
			agents.Artist: 1.7, agents.SpiritualMentor: 3.2, agents.Philosopher: 2.9,
		},
		trends.TopicSpiritual: {
			agents.ShopClerk: 1.1, agents.Worker: 2.3, agents.Developer: 1.4,
			agents.Politician: 1.2, agents.Blogger: 1.8, agents.Businessman: 1.6,
			agents.Doctor: 2.1, agents.Teacher: 2.2, agents.Unemployed: 4.1,
			agents.Artist: 2.8, agents.SpiritualMentor: 4.9, agents.Philosopher: 4.2,
		},
		trends.TopicConspiracy: {
			agents.ShopClerk: 1.5, agents.Worker: 1.9, agents.Developer: 1.2,
			agents.Politician: 1.8, agents.Blogger: 2.3, agents.Businessman: 1.4,
			agents.Doctor: 1.1, agents.Teacher: 1.6, agents.Unemployed: 2.8,
			agents.Artist: 2.1, agents.SpiritualMentor: 2.4, agents.Philosopher: 2.7,
		},
		trends.TopicScience: {
			agents.ShopClerk: 1.3, agents.Worker: 1.7, agents.Developer: 4.2,
			agents.Politician: 2.5, agents.Blogger: 1.8, agents.Businessman: 1.9,
			agents.Doctor: 3.8, agents.Teacher: 4.1, agents.Unemployed: 2.2,
			agents.Artist: 2.0, agents.SpiritualMentor: 2.6, agents.Philosopher: 3.9,
		},
		trends.TopicCulture: {
			agents.ShopClerk: 2.1, agents.Worker: 1.4, agents.Developer: 1.8,
			agents.Politician: 3.2, agents.Blogger: 3.6, agents.Businessman: 2.3,
			agents.Doctor: 2.0, agents.Teacher: 2.7, agents.Unemployed: 2.5,
			agents.Artist: 4.8, agents.SpiritualMentor: 2.9, agents.Philosopher: 2.8,
		},
		trends.TopicSport: {
			agents.ShopClerk: 2.3, agents.Worker: 2.8, agents.Developer: 1.5,
			agents.Politician: 2.2, agents.Blogger: 2.1, agents.Businessman: 2.4,
			agents.Doctor: 1.9, agents.Teacher: 2.0, agents.Unemployed: 2.6,
			agents.Artist: 1.8, agents.SpiritualMentor: 1.7, agents.Philosopher: 1.6,
		},
	}

	out := make(map[agents.Profession]map[trends.Topic]float64, len(agents.AllProfessions()))
	for topic, row := range byTopic {
		for p, score := range row {
			if out[p] == nil {
				out[p] = make(map[trends.Topic]float64, len(byTopic))
			}
			out[p][topic] = score
		}
	}
	return out
}

func defaultInterestRanges() map[agents.Profession]map[agents.InterestCategory]Range {
	type row struct {
		economics, wellbeing, spirituality, knowledge, creativity, society Range
	}
	rows := map[agents.Profession]row{
		agents.ShopClerk:       {Range{4.59, 5.0}, Range{0.74, 1.34}, Range{0.64, 1.24}, Range{1.15, 1.75}, Range{1.93, 2.53}, Range{2.70, 3.30}},
		agents.Worker:          {Range{3.97, 4.57}, Range{1.05, 1.65}, Range{1.86, 2.46}, Range{1.83, 2.43}, Range{0.87, 1.47}, Range{0.69, 1.29}},
		agents.Developer:       {Range{1.82, 2.42}, Range{1.15, 1.75}, Range{0.72, 1.32}, Range{4.05, 4.65}, Range{2.31, 2.91}, Range{1.59, 2.19}},
		agents.Politician:      {Range{0.51, 1.11}, Range{1.63, 2.23}, Range{0.32, 0.92}, Range{2.07, 2.67}, Range{1.73, 2.33}, Range{3.57, 4.17}},
		agents.Blogger:         {Range{1.32, 1.92}, Range{1.01, 1.61}, Range{1.20, 1.80}, Range{1.23, 1.83}, Range{3.27, 3.87}, Range{2.43, 3.03}},
		agents.Businessman:     {Range{4.01, 4.61}, Range{0.76, 1.36}, Range{0.91, 1.51}, Range{1.35, 1.95}, Range{2.04, 2.64}, Range{2.42, 3.02}},
		agents.SpiritualMentor: {Range{0.62, 1.22}, Range{2.04, 2.64}, Range{3.86, 4.46}, Range{2.11, 2.71}, Range{2.12, 2.72}, Range{1.95, 2.55}},
		agents.Philosopher:     {Range{1.06, 1.66}, Range{2.22, 2.82}, Range{3.71, 4.31}, Range{3.01, 3.61}, Range{2.21, 2.81}, Range{1.80, 2.40}},
		agents.Unemployed:      {Range{0.72, 1.32}, Range{1.38, 1.98}, Range{3.69, 4.29}, Range{2.15, 2.75}, Range{2.33, 2.93}, Range{2.42, 3.02}},
		agents.Teacher:         {Range{1.32, 1.92}, Range{2.16, 2.76}, Range{1.40, 2.00}, Range{3.61, 4.21}, Range{1.91, 2.51}, Range{2.24, 2.84}},
		agents.Artist:          {Range{0.86, 1.46}, Range{0.91, 1.51}, Range{2.01, 2.61}, Range{1.82, 2.42}, Range{3.72, 4.32}, Range{1.94, 2.54}},
		agents.Doctor:          {Range{1.02, 1.62}, Range{3.97, 4.57}, Range{1.37, 1.97}, Range{2.01, 2.61}, Range{1.58, 2.18}, Range{2.45, 3.05}},
	}

	out := make(map[agents.Profession]map[agents.InterestCategory]Range, len(rows))
	for p, r := range rows {
		out[p] = map[agents.InterestCategory]Range{
			agents.InterestEconomics:    r.economics,
			agents.InterestWellbeing:    r.wellbeing,
			agents.InterestSpirituality: r.spirituality,
			agents.InterestKnowledge:    r.knowledge,
			agents.InterestCreativity:   r.creativity,
			agents.InterestSociety:      r.society,
		}
	}
	return out
}

func defaultAttributeRanges() map[agents.Profession]map[agents.Attribute]Range {
	type row struct {
		financial, receptivity, social, energy, timeBudget Range
	}
	rows := map[agents.Profession]row{
		agents.ShopClerk:       {Range{2, 4}, Range{1, 3}, Range{1, 3}, Range{2, 5}, Range{3, 5}},
		agents.Worker:          {Range{2, 4}, Range{1, 3}, Range{1, 2}, Range{2, 5}, Range{3, 5}},
		agents.Developer:       {Range{3, 5}, Range{3, 5}, Range{2, 4}, Range{2, 5}, Range{2, 4}},
		agents.Politician:      {Range{3, 5}, Range{3, 5}, Range{4, 5}, Range{2, 4}, Range{2, 4}},
		agents.Blogger:         {Range{2, 4}, Range{4, 5}, Range{3, 5}, Range{2, 5}, Range{3, 5}},
		agents.Businessman:     {Range{4, 5}, Range{2, 4}, Range{4, 5}, Range{2, 5}, Range{2, 4}},
		agents.SpiritualMentor: {Range{1, 3}, Range{2, 5}, Range{2, 4}, Range{3, 5}, Range{2, 4}},
		agents.Philosopher:     {Range{1, 3}, Range{1, 3}, Range{1, 3}, Range{2, 4}, Range{2, 4}},
		agents.Unemployed:      {Range{1, 2}, Range{3, 5}, Range{1, 2}, Range{3, 5}, Range{3, 5}},
		agents.Teacher:         {Range{1, 3}, Range{1, 3}, Range{2, 4}, Range{1, 3}, Range{2, 4}},
		agents.Artist:          {Range{1, 3}, Range{2, 4}, Range{2, 4}, Range{4, 5}, Range{3, 5}},
		agents.Doctor:          {Range{2, 4}, Range{1, 3}, Range{3, 5}, Range{2, 4}, Range{1, 2}},
	}

	out := make(map[agents.Profession]map[agents.Attribute]Range, len(rows))
	for p, r := range rows {
		out[p] = map[agents.Attribute]Range{
			agents.AttrFinancialCapability: r.financial,
			agents.AttrTrendReceptivity:    r.receptivity,
			agents.AttrSocialStatus:        r.social,
			agents.AttrEnergyLevel:         r.energy,
			agents.AttrTimeBudget:          r.timeBudget,
		}
	}
	return out
}
