// Package vecmath holds the brute-force similarity helpers shared by the
// in-process and SQLite stores.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b over their common prefix.
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Ranked is an index into a candidate list with its similarity score.
type Ranked struct {
	Index int
	Score float64
}

// TopK scores every candidate against query and returns at most k entries
// ordered by descending similarity. Ties keep insertion order.
func TopK(query []float32, candidates [][]float32, k int) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Index: i, Score: Cosine(query, c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// Distance converts a cosine similarity into a cosine distance in [0, 2].
func Distance(similarity float64) float64 { return 1 - similarity }

// Encode packs vec as little-endian IEEE 754 float32 values.
func Encode(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// Decode reverses Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vecmath: invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
