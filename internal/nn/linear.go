// Package nn implements the plumbing layers the transformer core composes:
// dense projections, layer normalisation, embeddings, the feed-forward
// sublayer and a low-rank adapter utility. Every layer is a pure function of
// its input and its parameters.
package nn

import (
	"fmt"

	"github.com/loom-lm/loom/internal/tensor"
)

// Linear is a dense projection y = x W (+ b). W has shape [in, out].
type Linear struct {
	W    *tensor.Tensor
	Bias []float32
	In   int
	Out  int
}

// NewLinear allocates a zero-initialised projection. withBias controls
// whether a bias vector is allocated.
func NewLinear(in, out int, withBias bool) *Linear {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("nn: linear dimensions must be positive, got %dx%d", in, out))
	}
	l := &Linear{W: tensor.New(in, out), In: in, Out: out}
	if withBias {
		l.Bias = make([]float32, out)
	}
	return l
}

// Forward applies the projection to every position of a [B, T, in] tensor,
// returning [B, T, out].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Dim(x.Rank()-1) != l.In {
		panic(fmt.Sprintf("nn: linear input width %d, want %d", x.Dim(x.Rank()-1), l.In))
	}
	out := tensor.MatMul(x, l.W)
	if l.Bias != nil {
		for off := 0; off < len(out.Data); off += l.Out {
			tensor.Add(out.Data[off:off+l.Out], l.Bias)
		}
	}
	return out
}
