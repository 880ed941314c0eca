package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/loom-lm/loom/internal/logger"
	"github.com/loom-lm/loom/internal/model"
)

func newTestModel(t testing.TB) *model.GPT {
	t.Helper()
	m, err := model.New(model.Config{
		VocabSize:     32,
		ContextLength: 16,
		Width:         16,
		Heads:         2,
		Layers:        1,
		Topology:      model.TopologyMultiHead,
	}, 7)
	if err != nil {
		t.Fatalf("build test model: %v", err)
	}
	return m
}

func newTestEcho(t testing.TB, rps float64) *echo.Echo {
	t.Helper()
	s := NewServer(newTestModel(t), Defaults{MaxTokens: 4, Temperature: 1, TopP: 1}, rps, logger.JSON(io.Discard, slog.LevelError))
	e := echo.New()
	s.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCompletionSuccess(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":[1,2,3],"max_tokens":5,"seed":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp CompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "cmpl-") {
		t.Fatalf("id %q missing cmpl- prefix", resp.ID)
	}
	if resp.Object != "completion" {
		t.Fatalf("object = %q", resp.Object)
	}
	if resp.Usage.PromptTokens != 3 || resp.Usage.CompletionTokens != 5 || resp.Usage.TotalTokens != 8 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if len(resp.Tokens) != 8 {
		t.Fatalf("returned %d tokens, want 8", len(resp.Tokens))
	}
	for i, tok := range resp.Tokens[:3] {
		if tok != []int{1, 2, 3}[i] {
			t.Fatalf("prompt token %d rewritten to %d", i, tok)
		}
	}
}

func TestCompletionSameSeedSameTokens(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	body := `{"prompt":[4,5],"max_tokens":6,"seed":99}`

	var runs [2]CompletionResponse
	for i := range runs {
		rec := doJSON(t, e, http.MethodPost, "/v1/completions", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &runs[i]); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	if len(runs[0].Tokens) != len(runs[1].Tokens) {
		t.Fatalf("seeded runs differ in length: %d vs %d", len(runs[0].Tokens), len(runs[1].Tokens))
	}
	for i := range runs[0].Tokens {
		if runs[0].Tokens[i] != runs[1].Tokens[i] {
			t.Fatalf("seeded runs diverge at token %d", i)
		}
	}
}

func TestCompletionEmptyPrompt(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "prompt") {
		t.Fatalf("error body does not mention prompt: %s", rec.Body.String())
	}
}

func TestCompletionInvalidTopP(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":[1],"top_p":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "top-p") {
		t.Fatalf("error body does not mention top-p: %s", rec.Body.String())
	}
}

func TestCompletionUnknownField(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":[1],"beam_width":4}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCompletionMalformedJSON(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCompletionRateLimited(t *testing.T) {
	t.Parallel()

	// A 1 rps limiter with burst 2 admits the first requests and rejects
	// the rest of a tight loop.
	e := newTestEcho(t, 1)
	sawLimited := false
	for i := 0; i < 5; i++ {
		rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":[1],"max_tokens":1,"seed":1}`)
		if rec.Code == http.StatusTooManyRequests {
			sawLimited = true
			break
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
		}
	}
	if !sawLimited {
		t.Fatal("never saw a 429 from the rate limiter")
	}
}

func TestModelInfo(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodGet, "/v1/model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var cfg model.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.VocabSize != 32 || cfg.Topology != model.TopologyMultiHead {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
