package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/loom-lm/loom/internal/sample"
)

func generateCmd() *cli.Command {
	var (
		prompt      string
		steps       int64
		contextSize int64
		temperature float64
		topK        int64
		topP        float64
		eos         int64
		seed        int64
		greedy      bool
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a token continuation from a prompt",
		Flags: append(append(modelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "comma-separated prompt token ids",
				Required:    true,
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate",
				Value:       32,
				Destination: &steps,
			},
			&cli.Int64Flag{
				Name:        "context-size",
				Usage:       "sliding window size (0 uses the model context length)",
				Destination: &contextSize,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"t"},
				Usage:       "sampling temperature (0 for greedy)",
				Value:       1.0,
				Destination: &temperature,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "keep only the k highest logits (0 disables)",
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus sampling threshold in (0, 1]",
				Value:       1.0,
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "eos",
				Usage:       "stop token id (-1 disables)",
				Value:       -1,
				Destination: &eos,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling seed",
				Value:       42,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "greedy",
				Usage:       "baseline mode: raw argmax, no filtering or early stop",
				Destination: &greedy,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := LoadConfig()
			applyModelConfig(cmd, fileCfg)
			applyGenerateConfig(cmd, fileCfg, &temperature, &topK, &topP, &steps, &seed)
			log := buildLogger()

			ids, err := parsePrompt(prompt)
			if err != nil {
				return err
			}

			m, err := buildModel()
			if err != nil {
				return err
			}
			log.Info("model ready",
				"topology", m.Config.Topology,
				"layers", m.Config.Layers,
				"width", m.Config.Width,
				"heads", m.Config.Heads)

			window := int(contextSize)
			if window <= 0 {
				window = m.Config.ContextLength
			}

			var seq []int
			if greedy {
				seq, err = sample.GenerateGreedy(m, ids, int(steps), window)
			} else {
				cfg := sample.Config{
					MaxNewTokens: int(steps),
					ContextSize:  window,
					Temperature:  float32(temperature),
					TopP:         float32(topP),
					TopK:         int(topK),
					EOS:          int(eos),
				}
				seq, err = sample.Generate(m, cfg, ids, rand.New(rand.NewSource(seed)))
			}
			if err != nil {
				return err
			}

			log.Info("generation finished", "prompt_tokens", len(ids), "new_tokens", len(seq)-len(ids))
			fmt.Println(formatTokens(seq))
			return nil
		},
	}
}

func parsePrompt(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt token %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("prompt contains no token ids")
	}
	return ids, nil
}

func formatTokens(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
