package nn

import (
	"fmt"
	"math"

	"github.com/loom-lm/loom/internal/tensor"
)

// LayerNorm normalises each channel vector to zero mean and unit variance,
// then applies a learned affine rescale: y = (x - mean)/sqrt(var + eps) *
// gamma + beta.
type LayerNorm struct {
	Gamma []float32
	Beta  []float32
	Eps   float32
}

// NewLayerNorm returns a layer norm over vectors of the given width with
// gamma initialised to ones and beta to zeros.
func NewLayerNorm(width int, eps float32) *LayerNorm {
	g := make([]float32, width)
	for i := range g {
		g[i] = 1
	}
	return &LayerNorm{Gamma: g, Beta: make([]float32, width), Eps: eps}
}

// NormTo normalises src into dst. Both must have the layer's width.
func (n *LayerNorm) NormTo(dst, src []float32) {
	if len(src) != len(n.Gamma) || len(dst) < len(src) {
		panic(fmt.Sprintf("nn: layernorm width mismatch: %d vs %d", len(src), len(n.Gamma)))
	}
	var sum float64
	for _, v := range src {
		sum += float64(v)
	}
	mean := sum / float64(len(src))
	var varSum float64
	for _, v := range src {
		d := float64(v) - mean
		varSum += d * d
	}
	variance := varSum / float64(len(src))
	inv := 1.0 / math.Sqrt(variance+float64(n.Eps))
	for i, v := range src {
		dst[i] = float32((float64(v)-mean)*inv)*n.Gamma[i] + n.Beta[i]
	}
}

// Forward normalises every position of a sequence tensor, returning a new
// tensor of the same shape.
func (n *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	c := x.Dim(x.Rank() - 1)
	out := tensor.New(x.Shape...)
	for off := 0; off < len(x.Data); off += c {
		n.NormTo(out.Data[off:off+c], x.Data[off:off+c])
	}
	return out
}
