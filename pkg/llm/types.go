package llm

import "encoding/json"

// Role of a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one backend-neutral chat turn.
type Turn struct {
	Role     string `json:"role"`
	Text     string `json:"text"`
	ImageRef string `json:"image_ref,omitempty"`
}

// Request is a single call to a model backend. History is replayed before
// Current, which is always the turn being answered.
type Request struct {
	Model       string
	System      string
	History     []Turn
	Current     Turn
	Temperature *float64
	MaxTokens   int
}

// Reply is the normalized response from any backend.
type Reply struct {
	Text  string          `json:"text"`
	Raw   json.RawMessage `json:"raw,omitempty"`
	Usage Usage           `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(v float64) *float64 { return &v }
