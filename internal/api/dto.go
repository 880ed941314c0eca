package api

// CompletionRequest asks for a continuation of a prompt given as token ids.
// Pointer fields distinguish "not set" from zero so the server can apply its
// defaults.
type CompletionRequest struct {
	Prompt      []int    `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	ContextSize *int     `json:"context_size,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	EOS         *int     `json:"eos,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
}

// CompletionResponse returns the extended token sequence.
type CompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Tokens  []int  `json:"tokens"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseError is the error payload wrapped under an "error" key.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
