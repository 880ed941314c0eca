package attention

import (
	"fmt"
	"math/rand"

	"github.com/loom-lm/loom/internal/nn"
	"github.com/loom-lm/loom/internal/tensor"
)

// Config carries the construction parameters shared by all attention
// topologies. KVHeads is only consulted by the grouped-query constructor;
// the other topologies fix their own key/value head count.
type Config struct {
	// Width is the channel dimension of the sequence tensors flowing
	// through the module. Output width always equals input width.
	Width int

	// Heads is the number of query heads.
	Heads int

	// KVHeads is the number of key/value heads for grouped-query
	// attention. Must divide Heads.
	KVHeads int

	// ContextLength bounds the sequence length; the causal mask is built
	// once at this size and sliced per call.
	ContextLength int

	// Dropout is the training-mode rate applied to attention weights and
	// has no effect at inference.
	Dropout float32

	// Bias enables bias vectors on the Q/K/V and output projections.
	Bias bool
}

// Module is the sequence-to-sequence transform every topology implements.
// A non-nil rng selects training mode (dropout active); nil is inference.
type Module interface {
	Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error)
}

// projector owns the Q/K/V projections, the query-head to key/value-head
// assignment, the causal mask and the output re-projection. All four
// topologies are this machinery with different head counts.
type projector struct {
	heads   int
	kvHeads int
	headDim int
	width   int
	dropout float32

	wq  *nn.Linear // [width, heads*headDim]
	wk  *nn.Linear // [width, kvHeads*headDim]
	wv  *nn.Linear // [width, kvHeads*headDim]
	out *nn.Linear // [width, width]

	// kvIndex maps each query head to the key/value head it reads. The
	// assignment is contiguous: query heads h in one group of size
	// heads/kvHeads share kv head h/(heads/kvHeads).
	kvIndex []int

	mask *tensor.Mask
}

func newProjector(cfg Config, heads, kvHeads int) (*projector, error) {
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("attention width must be positive, got %d", cfg.Width)
	}
	if heads <= 0 || kvHeads <= 0 {
		return nil, fmt.Errorf("head counts must be positive, got %d query / %d kv", heads, kvHeads)
	}
	if cfg.Width%heads != 0 {
		return nil, fmt.Errorf("width %d not divisible by %d heads", cfg.Width, heads)
	}
	if heads%kvHeads != 0 {
		return nil, fmt.Errorf("%d heads not divisible by %d kv heads", heads, kvHeads)
	}
	if cfg.ContextLength <= 0 {
		return nil, fmt.Errorf("context length must be positive, got %d", cfg.ContextLength)
	}

	headDim := cfg.Width / heads
	groupSize := heads / kvHeads
	kvIndex := make([]int, heads)
	for h := range kvIndex {
		kvIndex[h] = h / groupSize
	}

	return &projector{
		heads:   heads,
		kvHeads: kvHeads,
		headDim: headDim,
		width:   cfg.Width,
		dropout: cfg.Dropout,
		wq:      nn.NewLinear(cfg.Width, heads*headDim, cfg.Bias),
		wk:      nn.NewLinear(cfg.Width, kvHeads*headDim, cfg.Bias),
		wv:      nn.NewLinear(cfg.Width, kvHeads*headDim, cfg.Bias),
		out:     nn.NewLinear(cfg.Width, cfg.Width, cfg.Bias),
		kvIndex: kvIndex,
		mask:    tensor.NewCausal(cfg.ContextLength),
	}, nil
}

// forward runs the full attention pipeline: project, split into heads,
// expand shared key/value heads to the query head count, attend under the
// causal mask, merge heads and re-project. Output shape equals input shape.
func (p *projector) forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("expected [batch, pos, channel] input, got shape %v", x.Shape)
	}
	n := x.Dim(1)
	if x.Dim(2) != p.width {
		return nil, fmt.Errorf("input width %d, want %d", x.Dim(2), p.width)
	}
	if n > p.mask.Rows {
		return nil, fmt.Errorf("sequence length %d exceeds context length %d", n, p.mask.Rows)
	}

	q := p.wq.Forward(x).SplitHeads(p.heads)
	k := p.wk.Forward(x).SplitHeads(p.kvHeads)
	v := p.wv.Forward(x).SplitHeads(p.kvHeads)

	k = p.expandKV(k)
	v = p.expandKV(v)

	ctx := ScaledDotProduct(q, k, v, p.mask.Slice(n, n), p.dropout, rng)
	return p.out.Forward(ctx.MergeHeads()), nil
}

// expandKV repeats key/value head slices so every query head has a slice to
// read, following the kvIndex assignment. With one kv head per query head it
// returns its argument untouched.
func (p *projector) expandKV(t *tensor.Tensor) *tensor.Tensor {
	if p.kvHeads == p.heads {
		return t
	}
	b, n, hd := t.Dim(0), t.Dim(2), t.Dim(3)
	out := tensor.New(b, p.heads, n, hd)
	for bi := 0; bi < b; bi++ {
		for h, kv := range p.kvIndex {
			src := t.Head(bi, kv)
			dst := out.Head(bi, h)
			copy(dst.Data, src.Data)
		}
	}
	return out
}
