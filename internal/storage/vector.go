package storage

import "math"

// CosineSimilarity returns the cosine similarity of two vectors, in [-1, 1].
// Mismatched lengths and zero vectors yield 0; a zero vector is the
// fail-soft sentinel for a failed embedding call and must never match
// anything.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZeroVector reports whether the vector is empty or all zeros (the
// degraded-embedding sentinel).
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
