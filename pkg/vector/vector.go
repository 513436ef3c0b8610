// Package vector provides float32 vector math for embedding similarity.
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 means identical direction. Mismatched
// lengths and zero vectors yield 0. Accumulates in float64 for precision.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the Euclidean length of the vector.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		x := float64(v)
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of the vector.
// The input is not modified; zero vectors map to zero.
func Normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	norm := Norm(vec)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
