// Package api exposes the decoder over HTTP: a single completion endpoint
// accepting prompt token ids and sampling knobs.
package api

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/loom-lm/loom/internal/logger"
	"github.com/loom-lm/loom/internal/model"
	"github.com/loom-lm/loom/internal/sample"
)

// Defaults are the sampling parameters used when the request leaves them
// unset.
type Defaults struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	TopK        int
	Seed        int64
}

// Server serves completions from a single in-memory model. Generation
// requests serialise through a mutex: the decoder owns its sequence state
// for the duration of a call and the model itself is shared read-only.
type Server struct {
	m        *model.GPT
	defaults Defaults
	limiter  *rate.Limiter
	log      logger.Logger
	mu       sync.Mutex
	clock    func() time.Time
}

// NewServer builds a server around a model. rps bounds accepted generation
// requests per second; zero disables limiting.
func NewServer(m *model.GPT, defaults Defaults, rps float64, log logger.Logger) *Server {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		m:        m,
		defaults: defaults,
		limiter:  limiter,
		log:      log,
		clock:    time.Now,
	}
}

// Register installs the routes on an echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/completions", s.handleCompletion)
	e.GET("/v1/model", s.handleModelInfo)
}

func (s *Server) handleModelInfo(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.m.Config)
}

func (s *Server) handleCompletion(c *echo.Context) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return writeError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
	}

	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	if len(req.Prompt) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "prompt is required and must not be empty")
	}

	cfg, seed := s.resolve(req)
	if err := cfg.Validate(s.m.Config.ContextLength, s.m.Config.VocabSize); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	id := "cmpl-" + uuid.NewString()
	start := s.clock()

	s.mu.Lock()
	seq, err := sample.Generate(s.m, cfg, req.Prompt, rand.New(rand.NewSource(seed)))
	s.mu.Unlock()
	if err != nil {
		s.log.Error("generation failed", "id", id, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	s.log.Info("completion served",
		"id", id,
		"prompt_tokens", len(req.Prompt),
		"completion_tokens", len(seq)-len(req.Prompt),
		"duration", s.clock().Sub(start))

	return c.JSON(http.StatusOK, CompletionResponse{
		ID:      id,
		Object:  "completion",
		Created: start.Unix(),
		Tokens:  seq,
		Usage: Usage{
			PromptTokens:     len(req.Prompt),
			CompletionTokens: len(seq) - len(req.Prompt),
			TotalTokens:      len(seq),
		},
	})
}

// resolve merges request fields over the server defaults into a decoder
// config.
func (s *Server) resolve(req CompletionRequest) (sample.Config, int64) {
	cfg := sample.DefaultConfig(s.defaults.MaxTokens, s.m.Config.ContextLength)
	cfg.Temperature = s.defaults.Temperature
	if s.defaults.TopP > 0 {
		cfg.TopP = s.defaults.TopP
	}
	cfg.TopK = s.defaults.TopK
	seed := s.defaults.Seed

	if req.MaxTokens != nil {
		cfg.MaxNewTokens = *req.MaxTokens
	}
	if req.ContextSize != nil {
		cfg.ContextSize = *req.ContextSize
	}
	if req.Temperature != nil {
		cfg.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		cfg.TopP = float32(*req.TopP)
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.EOS != nil {
		cfg.EOS = *req.EOS
	}
	if req.Seed != nil {
		seed = *req.Seed
	}
	return cfg, seed
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode request: %w", err)
	}
	return v, nil
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{Message: msg, Type: errType},
	})
}
