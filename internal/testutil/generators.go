package testutil

import (
	"math/rand"
)

// TestData returns n deterministic pseudo-random bytes for seed.
func TestData(seed int64, n int) []byte {
	data := make([]byte, n)
	r := rand.New(rand.NewSource(seed))
	_, _ = r.Read(data)
	return data
}

// Shuffled returns the numbers 1..n in a deterministic random order.
func Shuffled(seed int64, n int) []int {
	r := rand.New(rand.NewSource(seed))
	out := make([]int, n)
	for i, v := range r.Perm(n) {
		out[i] = v + 1
	}
	return out
}

// ReaderOnly hides every method of r but Read, e.g. io.ReaderAt or io.Seeker.
type ReaderOnly struct {
	R interface{ Read([]byte) (int, error) }
}

// Read implements io.Reader.
func (r ReaderOnly) Read(p []byte) (int, error) {
	return r.R.Read(p)
}
