package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the loom configuration file (~/.config/loom/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Model defaults
	VocabSize  *int64 `yaml:"vocab_size"`
	ContextLen *int64 `yaml:"context_length"`
	Width      *int64 `yaml:"width"`
	Heads      *int64 `yaml:"heads"`
	KVHeads    *int64 `yaml:"kv_heads"`
	Layers     *int64 `yaml:"layers"`
	Topology   string `yaml:"topology"`
	ModelSeed  *int64 `yaml:"model_seed"`

	// Sampling defaults
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`
	Steps       *int64   `yaml:"steps"`
	Seed        *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loom", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file does
// not exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyModelConfig fills model flag variables from the config file when the
// corresponding CLI flag was not set explicitly.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.VocabSize != nil && !c.IsSet("vocab") {
		vocabSize = *cfg.VocabSize
	}
	if cfg.ContextLen != nil && !c.IsSet("context") {
		contextLen = *cfg.ContextLen
	}
	if cfg.Width != nil && !c.IsSet("width") {
		width = *cfg.Width
	}
	if cfg.Heads != nil && !c.IsSet("heads") {
		heads = *cfg.Heads
	}
	if cfg.KVHeads != nil && !c.IsSet("kv-heads") {
		kvHeads = *cfg.KVHeads
	}
	if cfg.Layers != nil && !c.IsSet("layers") {
		layers = *cfg.Layers
	}
	if cfg.Topology != "" && !c.IsSet("topology") {
		topology = cfg.Topology
	}
	if cfg.ModelSeed != nil && !c.IsSet("model-seed") {
		modelSeed = *cfg.ModelSeed
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyGenerateConfig fills sampling flag variables from the config file.
func applyGenerateConfig(c *cli.Command, cfg Config,
	temp *float64, topK *int64, topP *float64, steps *int64, seed *int64,
) {
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.TopP
	}
	if cfg.Steps != nil && !c.IsSet("steps") {
		*steps = *cfg.Steps
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

// applyServeConfig fills server flag variables from the config file.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
