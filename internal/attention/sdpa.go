// Package attention implements causal scaled dot-product attention in four
// head-sharing topologies (single-head, multi-head, multi-query and
// grouped-query) and the transformer block that composes attention with the
// feed-forward sublayer.
package attention

import (
	"math"
	"math/rand"

	"github.com/loom-lm/loom/internal/tensor"
)

// Weights computes masked, normalised attention weights for queries q
// [*, Tq, d] against keys k [*, Tk, d]. Scores are scaled by 1/sqrt(d),
// forbidden positions are forced to -Inf before softmax so they carry
// exactly zero weight, and each row of the result sums to one. A nil mask
// leaves all positions visible.
func Weights(q, k *tensor.Tensor, mask *tensor.Mask) *tensor.Tensor {
	d := q.Dim(q.Rank() - 1)
	scores := tensor.MatMulT(q, k)
	tensor.Scale(scores.Data, float32(1.0/math.Sqrt(float64(d))))
	if mask != nil {
		tensor.ApplyMask(scores, mask)
	}
	tensor.SoftmaxRows(scores)
	return scores
}

// ScaledDotProduct computes attention context vectors: softmax(q k^T /
// sqrt(d), masked) v. q has shape [*, Tq, d]; k and v share [*, Tk, d]; the
// result is [*, Tq, d].
//
// A non-nil rng enables training mode: attention weights are dropped at the
// given rate after normalisation. Inference callers pass a nil rng and the
// weights are used exactly as computed.
func ScaledDotProduct(q, k, v *tensor.Tensor, mask *tensor.Mask, dropRate float32, rng *rand.Rand) *tensor.Tensor {
	w := Weights(q, k, mask)
	if rng != nil {
		tensor.Dropout(w.Data, dropRate, rng)
	}
	return tensor.MatMul(w, v)
}
