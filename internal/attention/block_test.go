package attention

import (
	"testing"

	"github.com/loom-lm/loom/internal/tensor"
)

func TestBlockPreservesShape(t *testing.T) {
	attn, err := NewMultiHead(Config{Width: 16, Heads: 4, ContextLength: 8})
	if err != nil {
		t.Fatalf("new attention: %v", err)
	}
	fillModule(attn)
	blk := NewBlock(attn, 16, 64, 0, false)
	tensor.FillRand(blk.FF.Up.W, 3)
	tensor.FillRand(blk.FF.Down.W, 4)

	x := testInput(2, 6, 16)
	out, err := blk.Forward(x, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if out.Dim(0) != 2 || out.Dim(1) != 6 || out.Dim(2) != 16 {
		t.Fatalf("block changed shape: %v", out.Shape)
	}
}

// With every projection and feed-forward weight at zero, both sublayers
// contribute nothing and the residual paths carry the input through intact.
func TestBlockResidualIdentity(t *testing.T) {
	attn, err := NewMultiHead(Config{Width: 8, Heads: 2, ContextLength: 8})
	if err != nil {
		t.Fatalf("new attention: %v", err)
	}
	blk := NewBlock(attn, 8, 32, 0, false)

	x := testInput(1, 4, 8)
	want := append([]float32(nil), x.Data...)
	out, err := blk.Forward(x, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	compareSlices(t, out.Data, want, 0)
}

func TestBlockPropagatesAttentionError(t *testing.T) {
	attn, err := NewMultiHead(Config{Width: 8, Heads: 2, ContextLength: 2})
	if err != nil {
		t.Fatalf("new attention: %v", err)
	}
	blk := NewBlock(attn, 8, 32, 0, false)
	if _, err := blk.Forward(testInput(1, 3, 8), nil); err == nil {
		t.Fatal("expected error for sequence beyond context length")
	}
}
