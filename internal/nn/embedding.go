package nn

import (
	"fmt"

	"github.com/loom-lm/loom/internal/tensor"
)

// Embedding is a lookup table mapping an integer index to a channel vector.
// It serves both token embeddings (rows = vocab size) and learned positional
// embeddings (rows = context length).
type Embedding struct {
	Weight *tensor.Tensor // [rows, width]
	Rows   int
	Width  int
}

// NewEmbedding allocates a zero-initialised table.
func NewEmbedding(rows, width int) *Embedding {
	if rows <= 0 || width <= 0 {
		panic(fmt.Sprintf("nn: embedding dimensions must be positive, got %dx%d", rows, width))
	}
	return &Embedding{Weight: tensor.New(rows, width), Rows: rows, Width: width}
}

// LookupTo copies the vector for index id into dst. The index must be in
// [0, Rows).
func (e *Embedding) LookupTo(dst []float32, id int) error {
	if id < 0 || id >= e.Rows {
		return fmt.Errorf("embedding index out of range: %d not in [0, %d)", id, e.Rows)
	}
	copy(dst[:e.Width], e.Weight.Row(id))
	return nil
}

// Lookup gathers the vectors for a batch of equal-length index sequences
// into a [B, T, width] tensor.
func (e *Embedding) Lookup(ids [][]int) (*tensor.Tensor, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("embedding lookup on empty batch")
	}
	n := len(ids[0])
	out := tensor.New(len(ids), n, e.Width)
	for b, seq := range ids {
		if len(seq) != n {
			return nil, fmt.Errorf("ragged batch: sequence %d has length %d, want %d", b, len(seq), n)
		}
		for t, id := range seq {
			if err := e.LookupTo(out.Row(b, t), id); err != nil {
				return nil, fmt.Errorf("batch %d position %d: %w", b, t, err)
			}
		}
	}
	return out, nil
}
