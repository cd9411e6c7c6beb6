// Package triage implements the evidence-clustering engine (§4.J): an
// embedding abstraction, a composite similarity score over embeddings plus
// lexical/structural signals, candidate-pair generation for large item
// sets, and a greedy k-NN clustering pass used to group atoms into themes.
package triage

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Vector is an embedding, always expected L2-normalized once it leaves an
// Embedder so cosine similarity reduces to a dot product.
type Vector []float64

// Embedder turns text into vectors. The engine treats embeddings as an
// interchangeable dependency: callers may plug in a remote provider: the
// default is the dependency-free HashingEmbedder below.
type Embedder interface {
	EmbedTexts(texts []string) ([]Vector, error)
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b Vector) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// L2Normalize scales vec to unit length, returning an all-zero vector if
// vec's norm is zero.
func L2Normalize(vec Vector) Vector {
	var normSq float64
	for _, v := range vec {
		normSq += v * v
	}
	out := make(Vector, len(vec))
	if normSq <= 0 {
		return out
	}
	inv := 1.0 / math.Sqrt(normSq)
	for i, v := range vec {
		out[i] = v * inv
	}
	return out
}

// stableHash64 is a deterministic, platform-independent 64-bit hash used by
// the hashing trick below (sha256 truncated to 8 bytes, matching the
// reference embedder's blake2b-then-truncate approach in spirit).
func stableHash64(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

// HashingEmbedder is the offline, dependency-free embedder: feature hashing
// over word tokens plus character n-grams, signed ("hashing trick") into a
// fixed-size vector, then L2-normalized. It is deterministic and requires
// no network access, so it is the default used by the triage CLI.
type HashingEmbedder struct {
	Dim          int
	TokenWeight  float64
	NgramN       int
	NgramWeight  float64
	MaxNgrams    int
}

// NewHashingEmbedder returns a HashingEmbedder with the reference defaults.
func NewHashingEmbedder() HashingEmbedder {
	return HashingEmbedder{
		Dim:         512,
		TokenWeight: 1.0,
		NgramN:      3,
		NgramWeight: 0.5,
		MaxNgrams:   4096,
	}
}

// EmbedTexts implements Embedder.
func (h HashingEmbedder) EmbedTexts(texts []string) ([]Vector, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 512
	}
	out := make([]Vector, len(texts))
	for i, text := range texts {
		vec := make(Vector, dim)

		for _, token := range Tokenize(text) {
			hash := stableHash64(token)
			idx := int(hash % uint64(dim))
			sign := signOf(hash)
			vec[idx] += sign * h.TokenWeight
		}

		if h.NgramWeight != 0 {
			for _, gram := range charNgrams(text, h.NgramN, h.MaxNgrams) {
				hash := stableHash64("g:" + gram)
				idx := int(hash % uint64(dim))
				sign := signOf(hash)
				vec[idx] += sign * h.NgramWeight
			}
		}

		out[i] = L2Normalize(vec)
	}
	return out, nil
}

func signOf(hash uint64) float64 {
	if hash&(1<<63) != 0 {
		return 1.0
	}
	return -1.0
}

// CachedEmbedder wraps an Embedder with an in-memory cache keyed by
// SHA-256(text), avoiding repeat calls for identical text across a run.
type CachedEmbedder struct {
	Inner Embedder
	cache map[string]Vector
}

// NewCachedEmbedder returns a CachedEmbedder wrapping inner.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{Inner: inner, cache: make(map[string]Vector)}
}

// EmbedTexts implements Embedder.
func (c *CachedEmbedder) EmbedTexts(texts []string) ([]Vector, error) {
	if c.cache == nil {
		c.cache = make(map[string]Vector)
	}

	keys := make([]string, len(texts))
	var missingTexts []string
	var missingKeys []string
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		key := string(sum[:])
		keys[i] = key
		if _, ok := c.cache[key]; !ok {
			missingTexts = append(missingTexts, text)
			missingKeys = append(missingKeys, key)
		}
	}

	if len(missingTexts) > 0 {
		vectors, err := c.Inner.EmbedTexts(missingTexts)
		if err != nil {
			return nil, err
		}
		for i, key := range missingKeys {
			c.cache[key] = vectors[i]
		}
	}

	out := make([]Vector, len(texts))
	for i, key := range keys {
		out[i] = c.cache[key]
	}
	return out, nil
}
