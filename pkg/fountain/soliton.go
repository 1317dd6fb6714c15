package fountain

import (
	"math"
	"math/rand"
)

// Robust soliton parameters. Tuned for small K (a vault config is a few KB,
// so K is typically well under a hundred).
const (
	solitonC     = 0.1
	solitonDelta = 0.5
)

// solitonTable holds the cumulative robust-soliton degree distribution for
// a fixed K. The table depends only on K, so encoder and decoder build
// identical copies without exchanging it.
type solitonTable struct {
	k   int
	cdf []float64
}

func newSolitonTable(k int) *solitonTable {
	if k == 1 {
		return &solitonTable{k: 1, cdf: []float64{1}}
	}

	rho := make([]float64, k+1)
	rho[1] = 1.0 / float64(k)
	for d := 2; d <= k; d++ {
		rho[d] = 1.0 / (float64(d) * float64(d-1))
	}

	r := solitonC * math.Log(float64(k)/solitonDelta) * math.Sqrt(float64(k))
	if r < 1 {
		r = 1
	}
	pivot := int(math.Floor(float64(k) / r))
	if pivot < 1 {
		pivot = 1
	}
	if pivot > k {
		pivot = k
	}

	tau := make([]float64, k+1)
	for d := 1; d < pivot; d++ {
		tau[d] = r / (float64(d) * float64(k))
	}
	tau[pivot] = r * math.Log(r/solitonDelta) / float64(k)

	var norm float64
	for d := 1; d <= k; d++ {
		norm += rho[d] + tau[d]
	}

	cdf := make([]float64, k+1)
	var acc float64
	for d := 1; d <= k; d++ {
		acc += (rho[d] + tau[d]) / norm
		cdf[d] = acc
	}
	cdf[k] = 1 // guard against float drift

	return &solitonTable{k: k, cdf: cdf}
}

// sampleDegree draws a degree in [1, K] from the distribution.
func (t *solitonTable) sampleDegree(rng *rand.Rand) int {
	u := rng.Float64()
	for d := 1; d <= t.k; d++ {
		if u <= t.cdf[d] {
			return d
		}
	}
	return t.k
}

// blockIndices returns the source blocks combined into the symbol at the
// given index. Indices below K are systematic (a plain copy of one block);
// later indices are coded, with composition derived from a PRNG seeded by
// the index alone so both sides agree with no back-channel.
func (t *solitonTable) blockIndices(index uint32) []int {
	if int(index) < t.k {
		return []int{int(index)}
	}

	rng := rand.New(rand.NewSource(int64(index)))
	degree := t.sampleDegree(rng)
	perm := rng.Perm(t.k)

	indices := make([]int, degree)
	copy(indices, perm[:degree])
	return indices
}
