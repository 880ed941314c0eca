// Package model stacks embeddings, transformer blocks and the output
// projection into a decoder-only language model.
package model

import "fmt"

// Topology selects the attention head-sharing scheme used by every block.
type Topology string

const (
	TopologySingleHead Topology = "single"
	TopologyMultiHead  Topology = "multihead"
	TopologyMultiQuery Topology = "multiquery"
	TopologyGrouped    Topology = "grouped"
)

// Config enumerates every recognised model hyperparameter. Validation
// happens once, at construction; a config that passes Validate builds a
// working model.
type Config struct {
	// VocabSize is the number of distinct token ids.
	VocabSize int `json:"vocab_size" yaml:"vocab_size"`

	// ContextLength is the longest sequence the model accepts.
	ContextLength int `json:"context_length" yaml:"context_length"`

	// Width is the embedding / channel dimension, constant through the
	// whole stack.
	Width int `json:"width" yaml:"width"`

	// Heads is the number of query heads per attention module.
	Heads int `json:"heads" yaml:"heads"`

	// KVHeads is the number of key/value heads for the grouped topology;
	// ignored by the others.
	KVHeads int `json:"kv_heads" yaml:"kv_heads"`

	// Layers is the number of stacked transformer blocks.
	Layers int `json:"layers" yaml:"layers"`

	// HiddenMultiplier scales Width to the feed-forward hidden width.
	// Zero means the conventional 4.
	HiddenMultiplier int `json:"hidden_multiplier" yaml:"hidden_multiplier"`

	// Dropout is the training-mode rate used across embeddings, attention
	// weights and residual paths.
	Dropout float32 `json:"dropout" yaml:"dropout"`

	// Bias enables bias vectors on projections.
	Bias bool `json:"bias" yaml:"bias"`

	// Topology picks the attention variant for every block.
	Topology Topology `json:"topology" yaml:"topology"`
}

// Validate reports the first configuration error, or nil.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab size must be positive, got %d", c.VocabSize)
	}
	if c.ContextLength <= 0 {
		return fmt.Errorf("context length must be positive, got %d", c.ContextLength)
	}
	if c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", c.Width)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("layer count must be positive, got %d", c.Layers)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout rate %v outside [0, 1)", c.Dropout)
	}
	switch c.Topology {
	case TopologySingleHead:
		// Head counts are fixed at one.
	case TopologyMultiHead, TopologyMultiQuery:
		if c.Heads <= 0 {
			return fmt.Errorf("head count must be positive, got %d", c.Heads)
		}
		if c.Width%c.Heads != 0 {
			return fmt.Errorf("width %d not divisible by %d heads", c.Width, c.Heads)
		}
	case TopologyGrouped:
		if c.Heads <= 0 || c.KVHeads <= 0 {
			return fmt.Errorf("head counts must be positive, got %d query / %d kv", c.Heads, c.KVHeads)
		}
		if c.Width%c.Heads != 0 {
			return fmt.Errorf("width %d not divisible by %d heads", c.Width, c.Heads)
		}
		if c.Heads%c.KVHeads != 0 {
			return fmt.Errorf("%d heads not divisible by %d kv heads", c.Heads, c.KVHeads)
		}
	default:
		return fmt.Errorf("unknown topology %q", c.Topology)
	}
	return nil
}

// Hidden returns the feed-forward hidden width.
func (c Config) Hidden() int {
	mult := c.HiddenMultiplier
	if mult <= 0 {
		mult = 4
	}
	return mult * c.Width
}
