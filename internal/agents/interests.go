package agents

// InterestCategory is one of the six fixed interest dimensions.
type InterestCategory string

const (
	InterestEconomics    InterestCategory = "Economics"
	InterestWellbeing    InterestCategory = "Wellbeing"
	InterestSpirituality InterestCategory = "Spirituality"
	InterestKnowledge    InterestCategory = "Knowledge"
	InterestCreativity   InterestCategory = "Creativity"
	InterestSociety      InterestCategory = "Society"
)

// AllInterestCategories returns the six categories in lexicographic order,
// which is also the tie-break order for best-topic selection.
func AllInterestCategories() []InterestCategory {
	return []InterestCategory{
		InterestCreativity, InterestEconomics, InterestKnowledge,
		InterestSociety, InterestSpirituality, InterestWellbeing,
	}
}

// Interests is a fixed-arity vector of per-category scalars on [0, 5].
type Interests struct {
	Economics    float64 `json:"Economics"`
	Wellbeing    float64 `json:"Wellbeing"`
	Spirituality float64 `json:"Spirituality"`
	Knowledge    float64 `json:"Knowledge"`
	Creativity   float64 `json:"Creativity"`
	Society      float64 `json:"Society"`
}

// Get returns the value for a category (0 for an unknown category).
func (i Interests) Get(c InterestCategory) float64 {
	switch c {
	case InterestEconomics:
		return i.Economics
	case InterestWellbeing:
		return i.Wellbeing
	case InterestSpirituality:
		return i.Spirituality
	case InterestKnowledge:
		return i.Knowledge
	case InterestCreativity:
		return i.Creativity
	case InterestSociety:
		return i.Society
	}
	return 0
}

// Set assigns the value for a category, clamped to [0, 5].
func (i *Interests) Set(c InterestCategory, v float64) {
	v = clamp(v, 0, 5)
	switch c {
	case InterestEconomics:
		i.Economics = v
	case InterestWellbeing:
		i.Wellbeing = v
	case InterestSpirituality:
		i.Spirituality = v
	case InterestKnowledge:
		i.Knowledge = v
	case InterestCreativity:
		i.Creativity = v
	case InterestSociety:
		i.Society = v
	}
}

// Best returns the category with the highest value. Ties break
// lexicographically by category name.
func (i Interests) Best() InterestCategory {
	cats := AllInterestCategories()
	best := cats[0]
	bestVal := i.Get(best)
	for _, c := range cats[1:] {
		if v := i.Get(c); v > bestVal {
			best, bestVal = c, v
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
