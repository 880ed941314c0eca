package nn

import (
	"math"
	"math/rand"

	"github.com/loom-lm/loom/internal/tensor"
)

// NormalInit fills t with samples from N(0, std^2). Used for embedding
// tables.
func NormalInit(t *tensor.Tensor, std float32, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * std
	}
}

// XavierInit fills a projection weight with Xavier-uniform values scaled by
// the fan-in and fan-out of its last two dimensions.
func XavierInit(t *tensor.Tensor, rng *rand.Rand) {
	fanIn := t.Dim(t.Rank() - 2)
	fanOut := t.Dim(t.Rank() - 1)
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range t.Data {
		t.Data[i] = float32(rng.Float64()*2*limit - limit)
	}
}
