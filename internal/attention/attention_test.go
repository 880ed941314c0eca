package attention

import (
	"math"
	"testing"

	"github.com/loom-lm/loom/internal/nn"
	"github.com/loom-lm/loom/internal/tensor"
)

func fillTestData(x []float32, scale float32) {
	for i := range x {
		x[i] = scale * float32((i%29)-14)
	}
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		g, w := got[i], want[i]
		if g < w-tol || g > w+tol {
			t.Fatalf("mismatch at %d: got %v want %v±%v", i, g, w, tol)
		}
	}
}

type projected interface {
	Projections() (wq, wk, wv, out *nn.Linear)
}

// fillModule gives a module reproducible non-trivial weights.
func fillModule(m projected) {
	wq, wk, wv, out := m.Projections()
	fillTestData(wq.W.Data, 0.11)
	fillTestData(wk.W.Data, 0.07)
	fillTestData(wv.W.Data, 0.05)
	fillTestData(out.W.Data, 0.09)
}

// copyModule copies src's projection weights into dst. The shapes must
// already agree.
func copyModule(t *testing.T, dst, src projected) {
	t.Helper()
	dq, dk, dv, do := dst.Projections()
	sq, sk, sv, so := src.Projections()
	for _, pair := range [][2]*nn.Linear{{dq, sq}, {dk, sk}, {dv, sv}, {do, so}} {
		if len(pair[0].W.Data) != len(pair[1].W.Data) {
			t.Fatalf("projection size mismatch: %d vs %d", len(pair[0].W.Data), len(pair[1].W.Data))
		}
		copy(pair[0].W.Data, pair[1].W.Data)
	}
}

func testInput(b, n, c int) *tensor.Tensor {
	x := tensor.New(b, n, c)
	fillTestData(x.Data, 0.13)
	return x
}

func TestForwardPreservesShape(t *testing.T) {
	cfg := Config{Width: 24, Heads: 6, KVHeads: 3, ContextLength: 16}

	modules := map[string]Module{}
	var err error
	if modules["single"], err = NewSingleHead(cfg); err != nil {
		t.Fatalf("single: %v", err)
	}
	if modules["multihead"], err = NewMultiHead(cfg); err != nil {
		t.Fatalf("multihead: %v", err)
	}
	if modules["multiquery"], err = NewMultiQuery(cfg); err != nil {
		t.Fatalf("multiquery: %v", err)
	}
	if modules["grouped"], err = NewGroupedQuery(cfg); err != nil {
		t.Fatalf("grouped: %v", err)
	}

	for name, m := range modules {
		fillModule(m.(projected))
		x := testInput(2, 7, 24)
		out, err := m.Forward(x, nil)
		if err != nil {
			t.Fatalf("%s forward: %v", name, err)
		}
		if out.Dim(0) != 2 || out.Dim(1) != 7 || out.Dim(2) != 24 {
			t.Fatalf("%s changed shape: %v", name, out.Shape)
		}
	}
}

func TestWeightsRowsNormalisedAndCausal(t *testing.T) {
	const (
		b, h, n, d = 2, 3, 5, 4
	)
	q := tensor.New(b, h, n, d)
	k := tensor.New(b, h, n, d)
	fillTestData(q.Data, 0.21)
	fillTestData(k.Data, 0.17)

	w := Weights(q, k, tensor.NewCausal(n))
	for slab := 0; slab < b*h; slab++ {
		for i := 0; i < n; i++ {
			row := w.Data[slab*n*n+i*n : slab*n*n+(i+1)*n]
			var sum float32
			for j, v := range row {
				if v < 0 {
					t.Fatalf("negative weight %v at row %d", v, i)
				}
				if j > i && v != 0 {
					t.Fatalf("future position (%d,%d) has weight %v", i, j, v)
				}
				sum += v
			}
			if sum < 0.999 || sum > 1.001 {
				t.Fatalf("row %d of slab %d sums to %v", i, slab, sum)
			}
		}
	}
}

func TestWeightsSinglePosition(t *testing.T) {
	q := tensor.New(1, 1, 1, 8)
	k := tensor.New(1, 1, 1, 8)
	fillTestData(q.Data, 0.4)
	fillTestData(k.Data, 0.3)

	w := Weights(q, k, tensor.NewCausal(1))
	if len(w.Data) != 1 || w.Data[0] != 1 {
		t.Fatalf("single-position weight row = %v, want [1]", w.Data)
	}
}

func TestScaledDotProductMatchesReference(t *testing.T) {
	const n, d = 6, 4
	q := tensor.New(1, 1, n, d)
	k := tensor.New(1, 1, n, d)
	v := tensor.New(1, 1, n, d)
	fillTestData(q.Data, 0.1)
	fillTestData(k.Data, 0.2)
	fillTestData(v.Data, 0.3)

	got := ScaledDotProduct(q, k, v, tensor.NewCausal(n), 0, nil)

	// Per-row reference with explicit masking.
	scale := float32(1.0 / math.Sqrt(d))
	want := make([]float32, n*d)
	for i := 0; i < n; i++ {
		scores := make([]float32, i+1)
		for j := 0; j <= i; j++ {
			var s float32
			for x := 0; x < d; x++ {
				s += q.Data[i*d+x] * k.Data[j*d+x]
			}
			scores[j] = s * scale
		}
		maxv := scores[0]
		for _, s := range scores {
			if s > maxv {
				maxv = s
			}
		}
		var sum float64
		for j := range scores {
			scores[j] = float32(math.Exp(float64(scores[j] - maxv)))
			sum += float64(scores[j])
		}
		for j := range scores {
			scores[j] = float32(float64(scores[j]) / sum)
		}
		for x := 0; x < d; x++ {
			var o float32
			for j := 0; j <= i; j++ {
				o += scores[j] * v.Data[j*d+x]
			}
			want[i*d+x] = o
		}
	}
	compareSlices(t, got.Data, want, 1e-5)
}

func TestGroupedDegeneratesToMultiHead(t *testing.T) {
	cfg := Config{Width: 16, Heads: 4, KVHeads: 4, ContextLength: 8}
	mh, err := NewMultiHead(cfg)
	if err != nil {
		t.Fatalf("multihead: %v", err)
	}
	gq, err := NewGroupedQuery(cfg)
	if err != nil {
		t.Fatalf("grouped: %v", err)
	}
	fillModule(mh)
	copyModule(t, gq, mh)

	x := testInput(2, 6, 16)
	a, err := mh.Forward(x, nil)
	if err != nil {
		t.Fatalf("multihead forward: %v", err)
	}
	b, err := gq.Forward(x, nil)
	if err != nil {
		t.Fatalf("grouped forward: %v", err)
	}
	compareSlices(t, b.Data, a.Data, 0)
}

func TestGroupedWithOneKVHeadMatchesMultiQuery(t *testing.T) {
	cfg := Config{Width: 16, Heads: 4, KVHeads: 1, ContextLength: 8}
	mq, err := NewMultiQuery(cfg)
	if err != nil {
		t.Fatalf("multiquery: %v", err)
	}
	gq, err := NewGroupedQuery(cfg)
	if err != nil {
		t.Fatalf("grouped: %v", err)
	}
	fillModule(mq)
	copyModule(t, gq, mq)

	x := testInput(1, 5, 16)
	a, err := mq.Forward(x, nil)
	if err != nil {
		t.Fatalf("multiquery forward: %v", err)
	}
	b, err := gq.Forward(x, nil)
	if err != nil {
		t.Fatalf("grouped forward: %v", err)
	}
	compareSlices(t, b.Data, a.Data, 0)
}

func TestSingleHeadMatchesOneHeadMultiHead(t *testing.T) {
	cfg := Config{Width: 12, Heads: 1, ContextLength: 8}
	sh, err := NewSingleHead(cfg)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	mh, err := NewMultiHead(cfg)
	if err != nil {
		t.Fatalf("multihead: %v", err)
	}
	fillModule(sh)
	copyModule(t, mh, sh)

	x := testInput(1, 4, 12)
	a, err := sh.Forward(x, nil)
	if err != nil {
		t.Fatalf("single forward: %v", err)
	}
	b, err := mh.Forward(x, nil)
	if err != nil {
		t.Fatalf("multihead forward: %v", err)
	}
	compareSlices(t, b.Data, a.Data, 0)
}

func TestConstructionValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		make func(Config) error
	}{
		{
			name: "width not divisible by heads",
			cfg:  Config{Width: 10, Heads: 3, ContextLength: 8},
			make: func(c Config) error { _, err := NewMultiHead(c); return err },
		},
		{
			name: "heads not divisible by kv heads",
			cfg:  Config{Width: 24, Heads: 6, KVHeads: 4, ContextLength: 8},
			make: func(c Config) error { _, err := NewGroupedQuery(c); return err },
		},
		{
			name: "zero context length",
			cfg:  Config{Width: 8, Heads: 2, ContextLength: 0},
			make: func(c Config) error { _, err := NewMultiHead(c); return err },
		},
		{
			name: "zero heads",
			cfg:  Config{Width: 8, Heads: 0, ContextLength: 8},
			make: func(c Config) error { _, err := NewMultiQuery(c); return err },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.make(tc.cfg); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestSequenceBeyondContextFails(t *testing.T) {
	m, err := NewMultiHead(Config{Width: 8, Heads: 2, ContextLength: 4})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := m.Forward(testInput(1, 5, 8), nil); err == nil {
		t.Fatal("expected error for sequence beyond context length")
	}
}

func TestKVIndexAssignment(t *testing.T) {
	gq, err := NewGroupedQuery(Config{Width: 32, Heads: 8, KVHeads: 4, ContextLength: 8})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := []int{0, 0, 1, 1, 2, 2, 3, 3}
	for h, kv := range want {
		if got := gq.KVIndex(h); got != kv {
			t.Fatalf("query head %d assigned kv head %d, want %d", h, got, kv)
		}
	}
}

func BenchmarkMultiHeadForward(b *testing.B) {
	m, err := NewMultiHead(Config{Width: 64, Heads: 8, ContextLength: 128})
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	fillModule(m)
	x := testInput(1, 128, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Forward(x, nil); err != nil {
			b.Fatal(err)
		}
	}
}
