package tensor

import (
	"fmt"
	"math"
)

// Mask is a boolean score mask. An entry set true forbids the corresponding
// (query, key) pair: its attention score is forced to -Inf before softmax so
// it receives exactly zero weight.
//
// Masks are built once at module construction for the full context length and
// sliced down to the active sequence length per call; Slice returns a view,
// never a copy, so the mask is effectively immutable after construction.
type Mask struct {
	Rows, Cols int
	stride     int
	forbid     []bool
}

// NewCausal builds an n-by-n causal mask: query position i may attend to key
// position j iff j <= i. The diagonal is always allowed, so no row can be
// fully masked.
func NewCausal(n int) *Mask {
	if n <= 0 {
		panic(fmt.Sprintf("tensor: causal mask size must be positive, got %d", n))
	}
	m := &Mask{Rows: n, Cols: n, stride: n, forbid: make([]bool, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.forbid[i*n+j] = true
		}
	}
	return m
}

// Slice returns a view of the top-left rows-by-cols corner of the mask.
func (m *Mask) Slice(rows, cols int) *Mask {
	if rows > m.Rows || cols > m.Cols {
		panic(fmt.Sprintf("tensor: mask slice %dx%d exceeds %dx%d", rows, cols, m.Rows, m.Cols))
	}
	return &Mask{Rows: rows, Cols: cols, stride: m.stride, forbid: m.forbid}
}

// Forbidden reports whether the (i, j) score is masked out.
func (m *Mask) Forbidden(i, j int) bool {
	return m.forbid[i*m.stride+j]
}

// ApplyMask sets scores to -Inf wherever the mask forbids them. The scores
// tensor's last two dimensions must match the mask; any leading batch or head
// dimensions share the same mask.
func ApplyMask(scores *Tensor, m *Mask) {
	if len(scores.Shape) < 2 {
		panic(fmt.Sprintf("tensor: ApplyMask wants rank >= 2, got shape %v", scores.Shape))
	}
	rows := scores.Shape[len(scores.Shape)-2]
	cols := scores.Shape[len(scores.Shape)-1]
	if rows != m.Rows || cols != m.Cols {
		panic(fmt.Sprintf("tensor: mask %dx%d does not match scores %v", m.Rows, m.Cols, scores.Shape))
	}
	negInf := float32(math.Inf(-1))
	slab := rows * cols
	for off := 0; off < len(scores.Data); off += slab {
		for i := 0; i < rows; i++ {
			mrow := m.forbid[i*m.stride : i*m.stride+cols]
			srow := scores.Data[off+i*cols : off+(i+1)*cols]
			for j, f := range mrow {
				if f {
					srow[j] = negInf
				}
			}
		}
	}
}
