package vector

import (
	"errors"
	"math"
)

var (
	// ErrNoVectors is returned by Combine when given no input.
	ErrNoVectors = errors.New("no vectors to combine")
	// ErrDimensionMismatch is returned when input vectors disagree on dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Dot returns the dot product of two vectors, or 0 on length mismatch.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity dot(a,b)/(||a||*||b||).
// Returns 0 when either vector has zero norm or lengths differ, so a
// degenerate embedding never divides by zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Combine returns the element-wise arithmetic mean of the given vectors.
// Combining a single vector returns a copy of it. Returns ErrNoVectors on
// empty input and ErrDimensionMismatch when the vectors are ragged.
func Combine(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrNoVectors
	}
	dim := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
	}
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}
