package agents

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// ReferenceRanges supplies the per-profession generation ranges. The refdata
// package provides the canonical implementation.
type ReferenceRanges interface {
	AttributeRange(p Profession, a Attribute) (min, max float64)
	InterestRange(p Profession, c InterestCategory) (min, max float64)
}

// Spawner creates agents for a run. All randomness comes from the run's RNG.
type Spawner struct {
	rng    *rand.Rand
	ranges ReferenceRanges
}

// NewSpawner creates an agent spawner backed by the given RNG and ranges.
func NewSpawner(rng *rand.Rand, ranges ReferenceRanges) *Spawner {
	return &Spawner{rng: rng, ranges: ranges}
}

// SpawnPopulation creates count agents following the default profession
// distribution, remainder going to Teacher.
func (s *Spawner) SpawnPopulation(count int) []*Person {
	people := make([]*Person, 0, count)
	assigned := 0
	for _, share := range DefaultDistribution() {
		n := int(float64(count) * share.Share)
		for i := 0; i < n; i++ {
			people = append(people, s.SpawnOne(share.Profession))
		}
		assigned += n
	}
	for ; assigned < count; assigned++ {
		people = append(people, s.SpawnOne(Teacher))
	}
	return people
}

// SpawnOne creates a single agent of the given profession with attributes and
// interests drawn from the reference ranges.
func (s *Spawner) SpawnOne(profession Profession) *Person {
	gender := "male"
	if s.rng.Float64() < 0.5 {
		gender = "female"
	}

	interests := Interests{}
	for _, c := range AllInterestCategories() {
		lo, hi := s.ranges.InterestRange(profession, c)
		interests.Set(c, round2(s.uniform(lo, hi)))
	}

	p := &Person{
		ID:                  uuid.New(),
		Profession:          profession,
		FirstName:           s.firstName(gender),
		LastName:            s.lastName(),
		Gender:              gender,
		BirthDate:           s.birthDate(),
		CreatedAt:           time.Now().UTC(),
		FinancialCapability: s.drawAttr(profession, AttrFinancialCapability),
		TrendReceptivity:    s.drawAttr(profession, AttrTrendReceptivity),
		SocialStatus:        s.drawAttr(profession, AttrSocialStatus),
		EnergyLevel:         s.drawAttr(profession, AttrEnergyLevel),
		TimeBudget:          s.drawTimeBudget(profession),
		Interests:           interests,
	}
	p.ResetParticipantState()
	return p
}

func (s *Spawner) drawAttr(profession Profession, a Attribute) float64 {
	lo, hi := s.ranges.AttributeRange(profession, a)
	return s.uniform(lo, hi)
}

// drawTimeBudget draws from the profession range on the 0.5 grid.
func (s *Spawner) drawTimeBudget(profession Profession) float64 {
	lo, hi := s.ranges.AttributeRange(profession, AttrTimeBudget)
	steps := int(math.Round((hi - lo) * 2))
	if steps <= 0 {
		return RoundTimeBudget(lo)
	}
	return RoundTimeBudget(lo + 0.5*float64(s.rng.Intn(steps+1)))
}

// birthDate places agents between 18 and 65 years old.
func (s *Spawner) birthDate() time.Time {
	ageYears := 18 + s.rng.Intn(48)
	day := s.rng.Intn(365)
	return time.Now().UTC().AddDate(-ageYears, 0, -day)
}

func (s *Spawner) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Spawner) firstName(gender string) string {
	if gender == "female" {
		return femaleNames[s.rng.Intn(len(femaleNames))]
	}
	return maleNames[s.rng.Intn(len(maleNames))]
}

func (s *Spawner) lastName() string {
	return lastNames[s.rng.Intn(len(lastNames))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var maleNames = []string{
	"James", "Oliver", "Henry", "Lucas", "Theodore", "William", "Benjamin",
	"Sebastian", "Jack", "Daniel", "Matthew", "Samuel", "David", "Joseph",
	"Leo", "Nathan", "Adam", "Thomas", "Victor", "Peter",
}

var femaleNames = []string{
	"Olivia", "Emma", "Charlotte", "Amelia", "Sophia", "Isabella", "Ava",
	"Mia", "Evelyn", "Harper", "Luna", "Camila", "Sofia", "Eleanor",
	"Alice", "Clara", "Nora", "Hazel", "Vera", "Iris",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	"Lee", "Perez", "Thompson", "White", "Harris", "Sanchez", "Clark",
	"Ramirez", "Lewis", "Robinson", "Walker", "Young", "Allen", "King",
}

// FullName is a convenience for logs and summaries.
func (p *Person) FullName() string {
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}
