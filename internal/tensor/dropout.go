package tensor

import (
	"fmt"
	"math/rand"
)

// Dropout zeroes each element of x with probability rate and scales the
// survivors by 1/(1-rate), so the expected value of every element is
// unchanged. It mutates x in place. The random source is caller-supplied;
// passing the same seeded source reproduces the same mask.
//
// With rate 0 or a nil source it is a no-op; inference callers simply never
// invoke it.
func Dropout(x []float32, rate float32, rng *rand.Rand) {
	if rate == 0 || rng == nil {
		return
	}
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("tensor: dropout rate %v outside [0, 1)", rate))
	}
	keep := 1.0 / (1.0 - rate)
	for i := range x {
		if rng.Float32() < rate {
			x[i] = 0
		} else {
			x[i] *= keep
		}
	}
}
