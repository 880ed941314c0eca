// Package sample implements constrained next-token selection and the
// autoregressive decoding loop: temperature scaling, top-k and nucleus
// (top-p) filtering over model logits, with a resumable step API.
package sample

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Config holds the decoding parameters. Zero values are not defaults;
// construct from DefaultConfig and override, or set every field. Validation
// is eager and invalid values are fatal, never silently corrected.
type Config struct {
	// MaxNewTokens bounds the number of generated tokens.
	MaxNewTokens int

	// ContextSize is the sliding window of trailing tokens fed to the
	// model each step. Must not exceed the model's context length.
	ContextSize int

	// Temperature divides the logits before softmax. Zero selects the
	// pure greedy path; negative values are rejected.
	Temperature float32

	// TopP keeps the smallest probability prefix whose cumulative mass
	// exceeds it. Must lie in (0, 1]; 1 disables nucleus filtering.
	TopP float32

	// TopK keeps exactly the k highest logits when positive; 0 disables.
	TopK int

	// EOS terminates generation when emitted. -1 disables.
	EOS int
}

// DefaultConfig returns an unconstrained sampling configuration:
// temperature 1, no top-k, no nucleus cut, no EOS.
func DefaultConfig(maxNewTokens, contextSize int) Config {
	return Config{
		MaxNewTokens: maxNewTokens,
		ContextSize:  contextSize,
		Temperature:  1,
		TopP:         1,
		TopK:         0,
		EOS:          -1,
	}
}

// Validate reports the first configuration error against a model with the
// given context length and vocabulary size.
func (c Config) Validate(contextLength, vocabSize int) error {
	if c.MaxNewTokens < 0 {
		return fmt.Errorf("max new tokens must be non-negative, got %d", c.MaxNewTokens)
	}
	if c.ContextSize <= 0 {
		return fmt.Errorf("context size must be positive, got %d", c.ContextSize)
	}
	if c.ContextSize > contextLength {
		return fmt.Errorf("context size %d exceeds model context length %d", c.ContextSize, contextLength)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %v", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("top-p %v outside (0, 1]", c.TopP)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top-k must be non-negative, got %d", c.TopK)
	}
	if c.EOS < -1 || c.EOS >= vocabSize {
		return fmt.Errorf("eos id %d outside [0, %d)", c.EOS, vocabSize)
	}
	return nil
}

// pick selects one token id from a logit vector according to the config,
// drawing randomness from rng. The transform order is fixed: temperature,
// top-k masking, softmax, nucleus cut, draw. With temperature zero the
// token is the argmax of the top-k-masked logits and the probability
// transforms are bypassed entirely. rng may be nil on that greedy path.
func (c Config) pick(logits []float32, rng *rand.Rand) int {
	scaled := make([]float32, len(logits))
	copy(scaled, logits)

	if c.Temperature > 0 {
		inv := 1 / c.Temperature
		for i := range scaled {
			scaled[i] *= inv
		}
	}

	if c.TopK > 0 && c.TopK < len(scaled) {
		maskBelowTopK(scaled, c.TopK)
	}

	// Greedy path. Top-k masking has already been applied above; the
	// nucleus cut deliberately has not (it only reshapes probabilities,
	// which greedy selection never consults).
	if c.Temperature == 0 {
		return argmax(scaled)
	}

	probs, idx := softmaxSorted(scaled)
	if c.TopP < 1 {
		probs = nucleusCut(probs, float64(c.TopP))
		idx = idx[:len(probs)]
	}

	r := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r <= cum {
			return idx[i]
		}
	}
	return idx[len(idx)-1]
}

// maskBelowTopK forces every logit outside the k highest to -Inf, in place.
// Ties at the boundary are resolved by index order, keeping exactly k
// positions finite.
func maskBelowTopK(logits []float32, k int) {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })
	negInf := float32(math.Inf(-1))
	for _, i := range idx[k:] {
		logits[i] = negInf
	}
}

// softmaxSorted converts logits to probabilities sorted descending,
// returning the probabilities and the token ids they belong to. The softmax
// subtracts the maximum logit for stability; -Inf logits get exactly zero
// mass.
func softmaxSorted(logits []float32) ([]float64, []int) {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })

	maxv := logits[idx[0]]
	probs := make([]float64, len(logits))
	var sum float64
	for i, id := range idx {
		v := math.Exp(float64(logits[id] - maxv))
		probs[i] = v
		sum += v
	}
	inv := 1 / sum
	for i := range probs {
		probs[i] *= inv
	}
	return probs, idx
}

// nucleusCut applies the top-p rule to descending-sorted probabilities: the
// cutoff is the probability at the last index whose cumulative sum is still
// <= p (or the single highest probability when even that exceeds p); every
// probability strictly below the cutoff is dropped and the remainder is
// renormalised to sum to one. At least one entry always survives.
func nucleusCut(probs []float64, p float64) []float64 {
	cutoff := probs[0]
	var cum float64
	for _, v := range probs {
		cum += v
		if cum > p {
			break
		}
		cutoff = v
	}

	keep := len(probs)
	for i, v := range probs {
		if v < cutoff {
			keep = i
			break
		}
	}
	kept := probs[:keep]

	var mass float64
	for _, v := range kept {
		mass += v
	}
	inv := 1 / mass
	for i := range kept {
		kept[i] *= inv
	}
	return kept
}

func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
