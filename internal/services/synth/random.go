package synth

import "math/rand"

// Random is the randomness consumed by the simulator. *rand.Rand satisfies it.
type Random interface {
	NormFloat64() float64 // standard normal draw
	Float64() float64     // uniform draw in [0,1)
}

// NewRandom returns a seeded source. Sources are not safe for concurrent use;
// give every instrument its own.
func NewRandom(seed int64) Random {
	return rand.New(rand.NewSource(seed))
}

// InstrumentSeed derives a per-instrument seed from a master seed.
func InstrumentSeed(master int64, index int) int64 {
	// splitmix64 finalizer keeps neighbouring indexes uncorrelated
	z := uint64(master) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
