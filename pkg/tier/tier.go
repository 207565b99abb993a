// Package tier implements the tiered blob placement engine: size-driven
// tier selection, access-pattern-driven promotion, age-driven demotion, and
// an in-memory per-path tier map with LRU eviction.
package tier

// Tier identifies a storage tier.
type Tier string

const (
	// Hot is the lowest-latency local KV tier.
	Hot Tier = "hot"

	// Warm is the standard object-store tier.
	Warm Tier = "warm"

	// Cold is the archive object-store tier.
	Cold Tier = "cold"
)

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t == Hot || t == Warm || t == Cold
}

// Colder returns true when t is strictly colder than other.
func (t Tier) Colder(other Tier) bool {
	return t.rank() > other.rank()
}

func (t Tier) rank() int {
	switch t {
	case Hot:
		return 0
	case Warm:
		return 1
	case Cold:
		return 2
	default:
		return 3
	}
}

// Order lists the tiers from hottest to coldest.
var Order = []Tier{Hot, Warm, Cold}

// Next returns the next colder tier, or "" from cold.
func (t Tier) Next() Tier {
	switch t {
	case Hot:
		return Warm
	case Warm:
		return Cold
	default:
		return ""
	}
}
