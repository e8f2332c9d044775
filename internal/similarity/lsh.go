package similarity

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Pair is an unordered pair of signature IDs with A < B.
type Pair struct {
	A string
	B string
}

func newPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// Index groups signatures into band buckets.
// It is immutable once BuildIndex returns and may be read concurrently.
type Index struct {
	bands      int
	rows       int
	ids        []string
	buckets    []map[string][]int
	candidates []Pair
}

// BuildIndex splits every signature into bands of rows values and groups
// signatures whose band values are identical. Bands are built in parallel.
// Signatures must all have length bands*rows.
func BuildIndex(ctx context.Context, signatures map[string]Signature, bands, rows, workers int) (*Index, error) {
	if bands <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: bands (%d) and rows (%d) must be positive",
			domain.ErrInvalidConfig, bands, rows)
	}
	want := bands * rows

	ids := make([]string, 0, len(signatures))
	for id, sig := range signatures {
		if len(sig) != want {
			return nil, fmt.Errorf("%w: signature %s has %d values, bands*rows is %d",
				domain.ErrInvalidConfig, id, len(sig), want)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	idx := &Index{
		bands:   bands,
		rows:    rows,
		ids:     ids,
		buckets: make([]map[string][]int, bands),
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for band := 0; band < bands; band++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			idx.buckets[band] = buildBand(ids, signatures, band, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx.candidates = idx.collectCandidates()
	return idx, nil
}

// buildBand groups signature positions by the exact bytes of one band.
func buildBand(ids []string, signatures map[string]Signature, band, rows int) map[string][]int {
	buckets := make(map[string][]int)
	key := make([]byte, rows*8)
	for pos, id := range ids {
		values := signatures[id][band*rows : (band+1)*rows]
		for i, v := range values {
			binary.LittleEndian.PutUint64(key[i*8:], v)
		}
		k := string(key)
		buckets[k] = append(buckets[k], pos)
	}
	return buckets
}

func (idx *Index) collectCandidates() []Pair {
	seen := make(map[uint64]struct{})
	for _, buckets := range idx.buckets {
		for _, members := range buckets {
			if len(members) < 2 {
				continue
			}
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					a, b := members[i], members[j]
					if a > b {
						a, b = b, a
					}
					seen[uint64(a)<<32|uint64(b)] = struct{}{}
				}
			}
		}
	}

	keys := make([]uint64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		pairs[i] = newPair(idx.ids[k>>32], idx.ids[k&0xFFFFFFFF])
	}
	return pairs
}

// Candidates returns every pair that shares a bucket in at least one band.
// Each pair appears once, in a deterministic order.
func (idx *Index) Candidates() []Pair {
	out := make([]Pair, len(idx.candidates))
	copy(out, idx.candidates)
	return out
}

// candidateProbability is the probability that two items with Jaccard similarity s
// share at least one bucket: 1 - (1 - s^rows)^bands.
func candidateProbability(s float64, bands, rows int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(rows)), float64(bands))
}

// thresholdEstimate returns the similarity at which the candidate probability
// crosses one half for the given banding.
func thresholdEstimate(bands, rows int) float64 {
	b := float64(bands)
	r := float64(rows)
	return math.Pow(1-math.Pow(0.5, 1/b), 1/r)
}
