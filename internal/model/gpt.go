package model

import (
	"fmt"
	"math/rand"

	"github.com/loom-lm/loom/internal/attention"
	"github.com/loom-lm/loom/internal/nn"
	"github.com/loom-lm/loom/internal/tensor"
)

// GPT is the stacked decoder-only model: token and positional embeddings,
// a fixed stack of transformer blocks, a final norm and the projection to
// vocabulary logits. It holds parameters only; no state survives a forward
// call, so callers may invoke it repeatedly and independently.
type GPT struct {
	Config    Config
	TokEmb    *nn.Embedding
	PosEmb    *nn.Embedding
	Blocks    []*attention.Block
	FinalNorm *nn.LayerNorm
	Output    *nn.Linear
}

// New builds a model from a validated config and initialises every
// parameter from the seed. The same config and seed always produce the same
// parameters.
func New(cfg Config, seed int64) (*GPT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}

	m := &GPT{
		Config:    cfg,
		TokEmb:    nn.NewEmbedding(cfg.VocabSize, cfg.Width),
		PosEmb:    nn.NewEmbedding(cfg.ContextLength, cfg.Width),
		Blocks:    make([]*attention.Block, cfg.Layers),
		FinalNorm: nn.NewLayerNorm(cfg.Width, 1e-5),
		Output:    nn.NewLinear(cfg.Width, cfg.VocabSize, false),
	}

	attnCfg := attention.Config{
		Width:         cfg.Width,
		Heads:         cfg.Heads,
		KVHeads:       cfg.KVHeads,
		ContextLength: cfg.ContextLength,
		Dropout:       cfg.Dropout,
		Bias:          cfg.Bias,
	}
	for i := range m.Blocks {
		attn, err := newAttention(cfg.Topology, attnCfg)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		m.Blocks[i] = attention.NewBlock(attn, cfg.Width, cfg.Hidden(), cfg.Dropout, cfg.Bias)
	}

	m.initialise(seed)
	return m, nil
}

func newAttention(topology Topology, cfg attention.Config) (attention.Module, error) {
	switch topology {
	case TopologySingleHead:
		return attention.NewSingleHead(cfg)
	case TopologyMultiHead:
		return attention.NewMultiHead(cfg)
	case TopologyMultiQuery:
		return attention.NewMultiQuery(cfg)
	case TopologyGrouped:
		return attention.NewGroupedQuery(cfg)
	default:
		return nil, fmt.Errorf("unknown topology %q", topology)
	}
}

type projected interface {
	Projections() (wq, wk, wv, out *nn.Linear)
}

func (m *GPT) initialise(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	nn.NormalInit(m.TokEmb.Weight, 0.02, rng)
	nn.NormalInit(m.PosEmb.Weight, 0.02, rng)
	nn.XavierInit(m.Output.W, rng)
	for _, b := range m.Blocks {
		wq, wk, wv, out := b.Attn.(projected).Projections()
		nn.XavierInit(wq.W, rng)
		nn.XavierInit(wk.W, rng)
		nn.XavierInit(wv.W, rng)
		nn.XavierInit(out.W, rng)
		nn.XavierInit(b.FF.Up.W, rng)
		nn.XavierInit(b.FF.Down.W, rng)
	}
}

// Forward maps a batch of equal-length token-id sequences to per-position
// logits over the vocabulary, shape [batch, pos, vocab]. A sequence longer
// than the context length or a token id outside [0, vocab) is an error, not
// a silent truncation. A non-nil rng selects training mode.
func (m *GPT) Forward(ids [][]int, rng *rand.Rand) (*tensor.Tensor, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, fmt.Errorf("empty input batch")
	}
	n := len(ids[0])
	if n > m.Config.ContextLength {
		return nil, fmt.Errorf("sequence length %d exceeds context length %d", n, m.Config.ContextLength)
	}

	x, err := m.TokEmb.Lookup(ids)
	if err != nil {
		return nil, fmt.Errorf("token embedding: %w", err)
	}
	for b := range ids {
		for t := 0; t < n; t++ {
			tensor.Add(x.Row(b, t), m.PosEmb.Weight.Row(t))
		}
	}
	if rng != nil {
		tensor.Dropout(x.Data, m.Config.Dropout, rng)
	}

	for i, block := range m.Blocks {
		x, err = block.Forward(x, rng)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	return m.Output.Forward(m.FinalNorm.Forward(x)), nil
}

// LastLogits runs Forward on a single sequence and returns the logit vector
// at the last position, which is all the decoder consumes per step.
func (m *GPT) LastLogits(seq []int) ([]float32, error) {
	logits, err := m.Forward([][]int{seq}, nil)
	if err != nil {
		return nil, err
	}
	return logits.Row(0, len(seq)-1), nil
}
