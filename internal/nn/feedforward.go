package nn

import (
	"github.com/loom-lm/loom/internal/tensor"
)

// FeedForward is the position-wise two-layer sublayer: expand to the hidden
// width, GELU, project back down. It is applied independently to every
// position of the sequence.
type FeedForward struct {
	Up   *Linear
	Down *Linear
}

// NewFeedForward builds a feed-forward sublayer with the given channel width
// and hidden width.
func NewFeedForward(width, hidden int, withBias bool) *FeedForward {
	return &FeedForward{
		Up:   NewLinear(width, hidden, withBias),
		Down: NewLinear(hidden, width, withBias),
	}
}

// Forward applies the sublayer to a [B, T, C] tensor, preserving shape.
func (f *FeedForward) Forward(x *tensor.Tensor) *tensor.Tensor {
	h := f.Up.Forward(x)
	for i, v := range h.Data {
		h.Data[i] = tensor.Gelu(v)
	}
	return f.Down.Forward(h)
}
