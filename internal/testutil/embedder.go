package testutil

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// HashEmbedder is a deterministic gateway.Embedder for tests. It maps each
// lowercased word of the input to a dimension via FNV hashing and counts
// occurrences, so texts sharing words produce vectors with high cosine
// similarity while disjoint texts score near zero. The same input always
// yields the same vector.
//
// Thread-safe for concurrent use.
type HashEmbedder struct {
	dimension int

	mu    sync.Mutex
	calls int
	fail  func(call int, text string) error
}

// NewHashEmbedder creates a HashEmbedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &HashEmbedder{dimension: dimension}
}

// FailWith installs a failure hook. Before each embedding, fail is called
// with the 0-based call number and the input text; a non-nil return aborts
// that call with the error.
func (e *HashEmbedder) FailWith(fail func(call int, text string) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = fail
}

// Calls returns how many times Embed has been invoked, including failures.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns the deterministic bag-of-words vector for text, L2
// normalized.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	fail := e.fail
	e.mu.Unlock()

	if fail != nil {
		if err := fail(call, text); err != nil {
			return nil, err
		}
	}

	vec := make([]float32, e.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], h.Sum32())
		idx := int(binary.BigEndian.Uint32(buf[:])) % e.dimension
		if idx < 0 {
			idx += e.dimension
		}
		vec[idx]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
