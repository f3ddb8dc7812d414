// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package dataset

// Matrix is a sparse user x item rating matrix stored row-wise. Within a
// row, columns follow the encounter order of the underlying interactions;
// each (row, column) cell appears at most once because Preprocess
// deduplicates upstream.
type Matrix struct {
	rows    int
	cols    int
	nnz     int
	rowCols [][]int
	rowVals [][]float64
}

// BuildMatrix assembles the sparse matrix for a prepared dataset. The
// matrix has Users.Len() rows and Items.Len() columns and one nonzero per
// retained interaction.
func BuildMatrix(p *Prepared) *Matrix {
	m := &Matrix{
		rows:    p.Users.Len(),
		cols:    p.Items.Len(),
		rowCols: make([][]int, p.Users.Len()),
		rowVals: make([][]float64, p.Users.Len()),
	}
	for _, in := range p.Interactions {
		m.rowCols[in.User] = append(m.rowCols[in.User], in.Item)
		m.rowVals[in.User] = append(m.rowVals[in.User], in.Rating)
		m.nnz++
	}
	return m
}

// Rows returns the number of user rows.
func (m *Matrix) Rows() int {
	return m.rows
}

// Cols returns the number of item columns.
func (m *Matrix) Cols() int {
	return m.cols
}

// NNZ returns the number of stored nonzero cells.
func (m *Matrix) NNZ() int {
	return m.nnz
}

// Row returns the column indices and values of one user row. The returned
// slices are views into the matrix and must not be modified.
func (m *Matrix) Row(user int) (cols []int, vals []float64) {
	if user < 0 || user >= m.rows {
		return nil, nil
	}
	return m.rowCols[user], m.rowVals[user]
}

// ColumnSums returns the per-item sum of stored ratings. For implicit
// datasets every stored value is 1.0, so the sums are interaction counts
// and rank items by popularity.
func (m *Matrix) ColumnSums() []float64 {
	sums := make([]float64, m.cols)
	for u := 0; u < m.rows; u++ {
		cols := m.rowCols[u]
		vals := m.rowVals[u]
		for k, c := range cols {
			sums[c] += vals[k]
		}
	}
	return sums
}
