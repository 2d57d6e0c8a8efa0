package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
)

const maxResponseBytes = 10 << 20

// HTTPProvider talks to an OpenAI-style completion endpoint. Responses are
// field-extracted with gjson so minor schema drift between vendors doesn't
// need a typed struct per provider.
type HTTPProvider struct {
	client *http.Client
	log    *logger.StyledLogger
	name   string
	url    string
	apiKey string
}

func NewHTTPProvider(name, url, apiKey string, log *logger.StyledLogger) *HTTPProvider {
	return &HTTPProvider{
		name:   name,
		url:    url,
		apiKey: apiKey,
		log:    log,
		client: &http.Client{
			// Per-call deadlines come from the resilience pipeline's
			// context; this is a hard upper bound only
			Timeout: 10 * time.Minute,
		},
	}
}

var _ ports.Provider = (*HTTPProvider)(nil)

func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	if req.Prompt == "" {
		return nil, domain.NewProviderError(domain.ErrKindValidation, p.name, req.Model,
			errors.New("prompt must not be empty"))
	}

	body := map[string]interface{}{
		"model":  req.Model,
		"prompt": req.Prompt,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	for k, v := range req.Options {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.NewProviderError(domain.ErrKindValidation, p.name, req.Model,
			fmt.Errorf("encoding request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewProviderError(domain.ErrKindValidation, p.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classifyTransportError(err, req.Model)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewProviderError(domain.ErrKindNetwork, p.name, req.Model,
			fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(resp, raw, req.Model)
	}

	return p.parseResponse(raw, req.Model, time.Since(start))
}

func (p *HTTPProvider) parseResponse(raw []byte, model string, latency time.Duration) (*domain.GenerateResponse, error) {
	text := gjson.GetBytes(raw, "choices.0.text")
	if !text.Exists() {
		text = gjson.GetBytes(raw, "choices.0.message.content")
	}
	if !text.Exists() {
		return nil, domain.NewProviderError(domain.ErrKindUnknown, p.name, model,
			errors.New("response carries no generated text"))
	}

	return &domain.GenerateResponse{
		Text:         text.String(),
		Model:        model,
		Provider:     p.name,
		FinishReason: gjson.GetBytes(raw, "choices.0.finish_reason").String(),
		Usage: domain.TokenUsage{
			PromptTokens:     int(gjson.GetBytes(raw, "usage.prompt_tokens").Int()),
			CompletionTokens: int(gjson.GetBytes(raw, "usage.completion_tokens").Int()),
			TotalTokens:      int(gjson.GetBytes(raw, "usage.total_tokens").Int()),
		},
		Latency: latency,
	}, nil
}

func (p *HTTPProvider) classifyTransportError(err error, model string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewProviderError(domain.ErrKindTimeout, p.name, model, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewProviderError(domain.ErrKindTimeout, p.name, model, err)
	default:
		return domain.NewProviderError(domain.ErrKindNetwork, p.name, model, err)
	}
}

func (p *HTTPProvider) classifyStatus(resp *http.Response, raw []byte, model string) error {
	message := gjson.GetBytes(raw, "error.message").String()
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	base := fmt.Errorf("%s (status %d)", message, resp.StatusCode)

	var kind domain.ErrorKind
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = domain.ErrKindAuth
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ErrKindModelNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = domain.ErrKindRateLimited
	case resp.StatusCode == http.StatusBadRequest:
		kind = domain.ErrKindValidation
	case resp.StatusCode >= 500:
		kind = domain.ErrKindServer
	default:
		kind = domain.ErrKindUnknown
	}

	perr := domain.NewProviderError(kind, p.name, model, base)
	perr.StatusCode = resp.StatusCode

	if kind == domain.ErrKindRateLimited {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			perr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return perr
}
