package pinecone

// SparseVector maps tokens to weights. Absent tokens weigh zero.
type SparseVector map[string]float64

// SparseDot sums q[t]*d[t] over the tokens present in both vectors.
func SparseDot(q, d SparseVector) float64 {
	if len(d) < len(q) {
		q, d = d, q
	}
	var sum float64
	for t, w := range q {
		if v, ok := d[t]; ok {
			sum += w * v
		}
	}
	return sum
}

// DenseDot is the dot product of two vectors. Extra trailing components of
// the longer vector are ignored.
func DenseDot(q, d []float64) float64 {
	n := min(len(q), len(d))
	var sum float64
	for i := 0; i < n; i++ {
		sum += q[i] * d[i]
	}
	return sum
}
