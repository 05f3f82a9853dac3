package behavior

import "math/rand/v2"

// Stream is a reusable PCG generator that is re-keyed for every trial so each
// (seed, persona, execution) triple always sees the same draws. A Stream is
// not safe for concurrent use; give each worker its own.
type Stream struct {
	src *rand.PCG
	rng *rand.Rand
}

// NewStream allocates an unkeyed stream.
func NewStream() *Stream {
	src := rand.NewPCG(0, 0)
	return &Stream{src: src, rng: rand.New(src)}
}

// Key positions the stream at the start of the trial's sequence and returns
// the generator to draw from.
func (s *Stream) Key(seed uint64, personaIndex, executionIndex int) *rand.Rand {
	hi, lo := TrialSeed(seed, personaIndex, executionIndex)
	s.src.Seed(hi, lo)
	return s.rng
}

// TrialSeed derives the 128-bit PCG seed for one trial using splitmix64
// so neighbouring indices give unrelated streams.
func TrialSeed(seed uint64, personaIndex, executionIndex int) (uint64, uint64) {
	hi := splitmix64(seed ^ splitmix64(uint64(personaIndex)+1))
	lo := splitmix64(hi ^ splitmix64(uint64(executionIndex)+0x9e3779b97f4a7c15))
	return hi, lo
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
