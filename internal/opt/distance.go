package opt

import "math"

// Matrix is a rectangular county-by-hospital distance matrix, row-major.
// Derived from coordinates; rebuild whenever they change.
type Matrix struct {
	rows, cols int
	d          []float64
}

// BuildMatrix computes Euclidean distances between every county centroid
// and every hospital location. Coincident points yield 0 with no special
// casing.
func BuildMatrix(counties []County, hospitals []Hospital) Matrix {
	m := Matrix{rows: len(counties), cols: len(hospitals), d: make([]float64, len(counties)*len(hospitals))}
	for i, c := range counties {
		for j, h := range hospitals {
			m.d[i*m.cols+j] = euclid(c.X, c.Y, h.X, h.Y)
		}
	}
	return m
}

// At returns the distance from county i to hospital j.
func (m Matrix) At(i, j int) float64 { return m.d[i*m.cols+j] }

// Dims returns the matrix shape (counties, hospitals).
func (m Matrix) Dims() (int, int) { return m.rows, m.cols }

func euclid(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
