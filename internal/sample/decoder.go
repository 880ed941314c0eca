package sample

import (
	"fmt"
	"math/rand"

	"github.com/loom-lm/loom/internal/model"
)

// Decoder drives a model autoregressively, one token per Step. It owns the
// growing sequence for the duration of the generation; nothing else is
// cached, so every step re-runs the model over the trailing window of
// ContextSize tokens.
//
// The step-wise API exists so callers can stop between iterations; Generate
// is the all-at-once convenience loop over it.
type Decoder struct {
	m       *model.GPT
	cfg     Config
	rng     *rand.Rand
	seq     []int
	emitted int
	done    bool
}

// NewDecoder validates the config against the model and seeds the decoder
// with a copy of the prompt. The random source is caller-owned; the same
// seeded source replays the same generation. With temperature zero the
// source is never consulted and may be nil.
func NewDecoder(m *model.GPT, cfg Config, prompt []int, rng *rand.Rand) (*Decoder, error) {
	if err := cfg.Validate(m.Config.ContextLength, m.Config.VocabSize); err != nil {
		return nil, fmt.Errorf("invalid decoder config: %w", err)
	}
	if len(prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	if cfg.Temperature > 0 && rng == nil {
		return nil, fmt.Errorf("sampling with temperature %v needs a random source", cfg.Temperature)
	}
	return &Decoder{
		m:   m,
		cfg: cfg,
		rng: rng,
		seq: append([]int(nil), prompt...),
	}, nil
}

// Done reports whether generation has finished, either by exhausting the
// token budget or by emitting the EOS token.
func (d *Decoder) Done() bool {
	return d.done || d.emitted >= d.cfg.MaxNewTokens
}

// Sequence returns the current token sequence: the prompt plus everything
// generated so far. The returned slice is a copy.
func (d *Decoder) Sequence() []int {
	return append([]int(nil), d.seq...)
}

// Step generates one token: it runs the model over the trailing window,
// applies the configured transforms to the last position's logits, selects
// a token and appends it. It returns the token. Calling Step after Done is
// an error.
func (d *Decoder) Step() (int, error) {
	if d.Done() {
		return 0, fmt.Errorf("decoder is finished")
	}

	window := d.seq
	if len(window) > d.cfg.ContextSize {
		window = window[len(window)-d.cfg.ContextSize:]
	}

	logits, err := d.m.LastLogits(window)
	if err != nil {
		return 0, fmt.Errorf("decode step %d: %w", d.emitted, err)
	}

	tok := d.cfg.pick(logits, d.rng)
	d.seq = append(d.seq, tok)
	d.emitted++
	if d.cfg.EOS >= 0 && tok == d.cfg.EOS {
		d.done = true
	}
	return tok, nil
}

// Generate runs the decoder to completion and returns the full sequence.
// The result never exceeds len(prompt) + cfg.MaxNewTokens tokens and
// includes the EOS token when one stopped generation early.
func Generate(m *model.GPT, cfg Config, prompt []int, rng *rand.Rand) ([]int, error) {
	d, err := NewDecoder(m, cfg, prompt, rng)
	if err != nil {
		return nil, err
	}
	for !d.Done() {
		if _, err := d.Step(); err != nil {
			return nil, err
		}
	}
	return d.Sequence(), nil
}

// GenerateGreedy is the baseline decoding mode: at every step it appends
// the argmax of the raw logits, with no scaling, filtering or early stop —
// only the fixed token budget ends it.
func GenerateGreedy(m *model.GPT, prompt []int, maxNewTokens, contextSize int) ([]int, error) {
	cfg := Config{
		MaxNewTokens: maxNewTokens,
		ContextSize:  contextSize,
		Temperature:  0,
		TopP:         1,
		EOS:          -1,
	}
	return Generate(m, cfg, prompt, nil)
}
