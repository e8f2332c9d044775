package similarity

import (
	"fmt"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Signature is a MinHash signature: one minimum per hash function.
type Signature []uint64

// Hasher computes MinHash signatures with a fixed, seeded family of hash functions.
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	a []uint64
	b []uint64
}

// NewHasher creates a family of numHashes hash functions derived from seed.
// Two hashers with the same arguments produce identical signatures.
func NewHasher(numHashes int, seed uint64) (*Hasher, error) {
	if numHashes <= 0 {
		return nil, fmt.Errorf("%w: number of hash functions must be positive, got %d",
			domain.ErrInvalidConfig, numHashes)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	h := &Hasher{
		a: make([]uint64, numHashes),
		b: make([]uint64, numHashes),
	}
	for i := 0; i < numHashes; i++ {
		h.a[i] = rng.Uint64() | 1
		h.b[i] = rng.Uint64()
	}
	return h, nil
}

// NumHashes returns the signature length produced by the hasher.
func (h *Hasher) NumHashes() int {
	return len(h.a)
}

// Sign computes the MinHash signature of a shingle set.
// An empty set has no meaningful signature and returns ErrEmptyTokenSet.
func (h *Hasher) Sign(shingles []string) (Signature, error) {
	if len(shingles) == 0 {
		return nil, domain.ErrEmptyTokenSet
	}

	sig := make(Signature, len(h.a))
	for i := range sig {
		sig[i] = ^uint64(0)
	}

	for _, s := range shingles {
		x := xxhash.Sum64String(s)
		for i := range sig {
			if v := mix64(h.a[i]*x + h.b[i]); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig, nil
}

// mix64 is the murmur3 finalizer. It spreads the affine permutation over all bits.
func mix64(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// EstimateJaccard returns the fraction of positions where both signatures agree.
func EstimateJaccard(a, b Signature) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: signature length mismatch (%d != %d)",
			domain.ErrInvalidConfig, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a)), nil
}

// Jaccard computes the exact Jaccard similarity of two string sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := set[s]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
