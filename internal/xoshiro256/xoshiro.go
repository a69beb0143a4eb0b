// Package xoshiro256 implements the xoshiro256** pseudo-random
// number generator, seeded through splitmix64. The implementation is
// based on the public domain [C implementation].
//
// [C implementation]: https://xoshiro.di.unimi.it/xoshiro256starstar.c
package xoshiro256

import (
	"math/bits"
	"sync"
)

type Source struct {
	state [4]uint64
}

// New returns a source seeded from a single word.
func New(seed uint64) *Source {
	s := new(Source)
	s.SeedUint64(seed)
	return s
}

// SeedUint64 expands seed into the full state with splitmix64, so
// that nearby seeds give unrelated sequences.
func (s *Source) SeedUint64(seed uint64) {
	for i := range s.state {
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		s.state[i] = z ^ (z >> 31)
	}
}

func (s *Source) Uint64() uint64 {
	result := rotl(s.state[1]*5, 7) * 9

	t := s.state[1] << 17

	s.state[2] ^= s.state[0]
	s.state[3] ^= s.state[1]
	s.state[1] ^= s.state[2]
	s.state[0] ^= s.state[3]

	s.state[2] ^= t

	s.state[3] = rotl(s.state[3], 45)

	return result
}

// Intn returns a uniform value in [0, n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("xoshiro256: invalid argument to Intn")
	}
	// Lemire's multiply-shift with rejection of the biased low range.
	bound := uint64(n)
	hi, lo := bits.Mul64(s.Uint64(), bound)
	if lo < bound {
		thresh := -bound % bound
		for lo < thresh {
			hi, lo = bits.Mul64(s.Uint64(), bound)
		}
	}
	return int(hi)
}

// Range returns a value in [min, max), or min if the range is
// empty.
func (s *Source) Range(min, max int32) int32 {
	if max <= min {
		return min
	}
	return int32(int64(min) + int64(s.Intn(int(int64(max)-int64(min)))))
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.Uint64()>>11) * 0x1p-53
}

func rotl(x uint64, k int) uint64 {
	return (x << k) | (x >> (64 - k))
}

// Locked is a Source safe for concurrent use.
type Locked struct {
	mu  sync.Mutex
	src Source
}

func NewLocked(seed uint64) *Locked {
	l := new(Locked)
	l.src.SeedUint64(seed)
	return l
}

func (l *Locked) Range(min, max int32) int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Range(min, max)
}
