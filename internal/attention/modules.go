package attention

import (
	"math/rand"

	"github.com/loom-lm/loom/internal/nn"
	"github.com/loom-lm/loom/internal/tensor"
)

// SingleHead is attention without a head split: one query head attending
// against one key/value head over the full channel width.
type SingleHead struct {
	p *projector
}

// NewSingleHead constructs single-head attention. The Heads and KVHeads
// fields of cfg are ignored.
func NewSingleHead(cfg Config) (*SingleHead, error) {
	p, err := newProjector(cfg, 1, 1)
	if err != nil {
		return nil, err
	}
	return &SingleHead{p: p}, nil
}

func (a *SingleHead) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	return a.p.forward(x, rng)
}

func (a *SingleHead) Projections() (wq, wk, wv, out *nn.Linear) { return a.p.projections() }

// MultiHead is conventional multi-head attention: every query head owns a
// private key/value head.
type MultiHead struct {
	p *projector
}

func NewMultiHead(cfg Config) (*MultiHead, error) {
	p, err := newProjector(cfg, cfg.Heads, cfg.Heads)
	if err != nil {
		return nil, err
	}
	return &MultiHead{p: p}, nil
}

func (a *MultiHead) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	return a.p.forward(x, rng)
}

func (a *MultiHead) Projections() (wq, wk, wv, out *nn.Linear) { return a.p.projections() }

// MultiQuery shares one key/value head across all query heads, shrinking the
// key/value projections to a single head's width.
type MultiQuery struct {
	p *projector
}

func NewMultiQuery(cfg Config) (*MultiQuery, error) {
	p, err := newProjector(cfg, cfg.Heads, 1)
	if err != nil {
		return nil, err
	}
	return &MultiQuery{p: p}, nil
}

func (a *MultiQuery) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	return a.p.forward(x, rng)
}

func (a *MultiQuery) Projections() (wq, wk, wv, out *nn.Linear) { return a.p.projections() }

// GroupedQuery shares each key/value head across a contiguous group of
// query heads. KVHeads must divide Heads; KVHeads == Heads degenerates to
// multi-head and KVHeads == 1 to multi-query.
type GroupedQuery struct {
	p *projector
}

func NewGroupedQuery(cfg Config) (*GroupedQuery, error) {
	p, err := newProjector(cfg, cfg.Heads, cfg.KVHeads)
	if err != nil {
		return nil, err
	}
	return &GroupedQuery{p: p}, nil
}

func (a *GroupedQuery) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	return a.p.forward(x, rng)
}

func (a *GroupedQuery) Projections() (wq, wk, wv, out *nn.Linear) { return a.p.projections() }

// KVIndex reports which key/value head the given query head reads, exposing
// the sharing assignment for inspection.
func (a *GroupedQuery) KVIndex(head int) int { return a.p.kvIndex[head] }

func (p *projector) projections() (wq, wk, wv, out *nn.Linear) {
	return p.wq, p.wk, p.wv, p.out
}
