package domain

import "time"

// GenerateRequest is the provider-agnostic inference request.
type GenerateRequest struct {
	Options     map[string]interface{}
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse carries one provider's answer. A successful response
// never carries an error; failures travel as *ProviderError.
type GenerateResponse struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        TokenUsage    `json:"usage"`
	Latency      time.Duration `json:"latency_ns"`
}

// FanoutRequest asks the gateway to run one prompt across several models.
type FanoutRequest struct {
	Options       map[string]interface{} `json:"options,omitempty"`
	Capabilities  map[string]string      `json:"capabilities,omitempty"`
	Prompt        string                 `json:"prompt"`
	Strategy      string                 `json:"strategy,omitempty"`
	RequiredCount int                    `json:"required_count,omitempty"`
}

// FanoutResult enumerates per-model outcomes. A partially failed fan-out is
// still a success as long as at least one model answered.
type FanoutResult struct {
	Responses map[string]*GenerateResponse `json:"responses"`
	Failures  map[string]string            `json:"failures,omitempty"`
	RequestID string                       `json:"request_id"`
	FromCache bool                         `json:"from_cache"`
}
