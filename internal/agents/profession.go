package agents

// Profession determines an agent's reference ranges and topic affinities.
type Profession string

const (
	ShopClerk       Profession = "ShopClerk"
	Worker          Profession = "Worker"
	Developer       Profession = "Developer"
	Politician      Profession = "Politician"
	Blogger         Profession = "Blogger"
	Businessman     Profession = "Businessman"
	SpiritualMentor Profession = "SpiritualMentor"
	Philosopher     Profession = "Philosopher"
	Unemployed      Profession = "Unemployed"
	Teacher         Profession = "Teacher"
	Artist          Profession = "Artist"
	Doctor          Profession = "Doctor"
)

// AllProfessions returns the twelve professions in a stable order.
func AllProfessions() []Profession {
	return []Profession{
		ShopClerk, Worker, Developer, Politician, Blogger, Businessman,
		SpiritualMentor, Philosopher, Unemployed, Teacher, Artist, Doctor,
	}
}

// ValidProfession reports whether p is a known profession.
func ValidProfession(p Profession) bool {
	for _, known := range AllProfessions() {
		if p == known {
			return true
		}
	}
	return false
}

// DistributionShare is one slice of the default population mix.
type DistributionShare struct {
	Profession Profession
	Share      float64
}

// DefaultDistribution is the profession mix used for generated populations.
// Rounding remainders go to the most common profession (Teacher).
func DefaultDistribution() []DistributionShare {
	return []DistributionShare{
		{Teacher, 0.20},
		{ShopClerk, 0.18},
		{Developer, 0.12},
		{Unemployed, 0.09},
		{Businessman, 0.08},
		{Artist, 0.08},
		{Worker, 0.07},
		{Blogger, 0.05},
		{SpiritualMentor, 0.03},
		{Philosopher, 0.02},
		{Politician, 0.01},
		{Doctor, 0.01},
	}
}
