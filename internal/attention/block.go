package attention

import (
	"fmt"
	"math/rand"

	"github.com/loom-lm/loom/internal/nn"
	"github.com/loom-lm/loom/internal/tensor"
)

// Block is one transformer block: pre-norm attention with a residual
// connection, then a pre-norm feed-forward with a second residual. Input and
// output shapes are identical, which is what lets blocks stack.
type Block struct {
	Norm1 *nn.LayerNorm
	Attn  Module
	Norm2 *nn.LayerNorm
	FF    *nn.FeedForward

	// Drop is the training-mode rate on each residual path.
	Drop float32
}

// NewBlock assembles a block around an attention module.
func NewBlock(attn Module, width, hidden int, dropout float32, bias bool) *Block {
	return &Block{
		Norm1: nn.NewLayerNorm(width, 1e-5),
		Attn:  attn,
		Norm2: nn.NewLayerNorm(width, 1e-5),
		FF:    nn.NewFeedForward(width, hidden, bias),
		Drop:  dropout,
	}
}

// Forward runs both sublayers. A non-nil rng selects training mode and is
// threaded through to attention-weight and residual-path dropout.
func (b *Block) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	attnOut, err := b.Attn.Forward(b.Norm1.Forward(x), rng)
	if err != nil {
		return nil, fmt.Errorf("attention sublayer: %w", err)
	}
	if rng != nil {
		tensor.Dropout(attnOut.Data, b.Drop, rng)
	}
	tensor.Add(attnOut.Data, x.Data)

	ffOut := b.FF.Forward(b.Norm2.Forward(attnOut))
	if rng != nil {
		tensor.Dropout(ffOut.Data, b.Drop, rng)
	}
	tensor.Add(ffOut.Data, attnOut.Data)
	return ffOut, nil
}
