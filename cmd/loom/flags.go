package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/loom-lm/loom/internal/logger"
	"github.com/loom-lm/loom/internal/model"
)

var (
	vocabSize  int64
	contextLen int64
	width      int64
	heads      int64
	kvHeads    int64
	layers     int64
	topology   string
	bias       bool
	modelSeed  int64
	logLevel   string
	logFormat  string
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "vocabulary size",
			Value:       50257,
			Destination: &vocabSize,
		},
		&cli.Int64Flag{
			Name:        "context",
			Aliases:     []string{"ctx", "c"},
			Usage:       "context length",
			Value:       256,
			Destination: &contextLen,
		},
		&cli.Int64Flag{
			Name:        "width",
			Usage:       "embedding width",
			Value:       128,
			Destination: &width,
		},
		&cli.Int64Flag{
			Name:        "heads",
			Usage:       "query head count",
			Value:       8,
			Destination: &heads,
		},
		&cli.Int64Flag{
			Name:        "kv-heads",
			Usage:       "key/value head count (grouped topology)",
			Value:       4,
			Destination: &kvHeads,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Usage:       "transformer block count",
			Value:       4,
			Destination: &layers,
		},
		&cli.StringFlag{
			Name:        "topology",
			Usage:       "attention topology (single, multihead, multiquery, grouped)",
			Value:       "multihead",
			Destination: &topology,
		},
		&cli.BoolFlag{
			Name:        "bias",
			Usage:       "enable projection biases",
			Destination: &bias,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "parameter initialisation seed",
			Value:       1337,
			Destination: &modelSeed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Default()
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

func buildModel() (*model.GPT, error) {
	cfg := model.Config{
		VocabSize:     int(vocabSize),
		ContextLength: int(contextLen),
		Width:         int(width),
		Heads:         int(heads),
		KVHeads:       int(kvHeads),
		Layers:        int(layers),
		Topology:      model.Topology(topology),
	}
	return model.New(cfg, modelSeed)
}
