package nn

import (
	"fmt"

	"github.com/loom-lm/loom/internal/tensor"
)

// LoRA is a low-rank adapter for a Linear layer: the effective projection
// becomes y = x W + (x A) B * (alpha/rank), where A is [in, rank] and B is
// [rank, out]. Adapters let a frozen base projection be adjusted with far
// fewer parameters; they are orthogonal to inference and can be merged into
// the base weight once finalised.
type LoRA struct {
	A     *tensor.Tensor // [in, rank]
	B     *tensor.Tensor // [rank, out]
	Rank  int
	Alpha float32
}

// NewLoRA allocates an adapter for an in-by-out projection. Returns an error
// when the rank is not in [1, min(in, out)].
func NewLoRA(in, out, rank int, alpha float32) (*LoRA, error) {
	limit := in
	if out < limit {
		limit = out
	}
	if rank < 1 || rank > limit {
		return nil, fmt.Errorf("lora rank %d not in [1, %d] for %dx%d projection", rank, limit, in, out)
	}
	return &LoRA{
		A:     tensor.New(in, rank),
		B:     tensor.New(rank, out),
		Rank:  rank,
		Alpha: alpha,
	}, nil
}

// Apply returns base.Forward(x) plus the adapter delta.
func (l *LoRA) Apply(base *Linear, x *tensor.Tensor) *tensor.Tensor {
	out := base.Forward(x)
	delta := tensor.MatMul(tensor.MatMul(x, l.A), l.B)
	tensor.Scale(delta.Data, l.Alpha/float32(l.Rank))
	tensor.Add(out.Data, delta.Data)
	return out
}

// MergeInto folds the adapter into the base weight: W += A B * (alpha/rank).
// After merging, plain base.Forward matches Apply.
func (l *LoRA) MergeInto(base *Linear) error {
	if l.A.Dim(0) != base.In || l.B.Dim(1) != base.Out {
		return fmt.Errorf("lora shape %dx%d does not match %dx%d projection",
			l.A.Dim(0), l.B.Dim(1), base.In, base.Out)
	}
	delta := tensor.MatMul(l.A, l.B)
	tensor.Scale(delta.Data, l.Alpha/float32(l.Rank))
	tensor.Add(base.W.Data, delta.Data)
	return nil
}
