package protocol

import "fmt"

// MatrixToVectors converts a row-major matrix into one Vector per row.
// Rows are copied. A ragged matrix is rejected with ErrRaggedMatrix.
func MatrixToVectors(m [][]float64) ([]Vector, error) {
	if err := checkRectangular(len(m), func(i int) int { return len(m[i]) }); err != nil {
		return nil, err
	}
	out := make([]Vector, len(m))
	for i, row := range m {
		out[i] = append(Vector{}, row...)
	}
	return out, nil
}

// VectorsToMatrix is the inverse of MatrixToVectors.
func VectorsToMatrix(vs []Vector) ([][]float64, error) {
	if err := checkRectangular(len(vs), func(i int) int { return len(vs[i]) }); err != nil {
		return nil, err
	}
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = append([]float64{}, v...)
	}
	return out, nil
}

func checkRectangular(rows int, width func(int) int) error {
	if rows == 0 {
		return nil
	}
	want := width(0)
	for i := 1; i < rows; i++ {
		if got := width(i); got != want {
			return fmt.Errorf("%w: row %d has %d columns, row 0 has %d", ErrRaggedMatrix, i, got, want)
		}
	}
	return nil
}
