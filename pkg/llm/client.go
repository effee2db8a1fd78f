// Package llm 托管文本生成模型客户端，按配置选择 OpenAI 兼容接口或 Bedrock
package llm

import (
	"assessment_backend/internal/config"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrThrottled 上游限流，可重试
var ErrThrottled = errors.New("llm: request throttled")

// Prompt 一次补全请求
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Provider() string
}

// StatusError 非限流的上游 HTTP 错误，不重试
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// New 根据配置构造客户端，model 为空时使用 cfg.Model
func New(cfg config.AIConfig, model string) (Client, error) {
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, errors.New("llm: model is required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, model, &http.Client{Timeout: timeout}), nil
	case "bedrock":
		return NewBedrockClient(BedrockOptions{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Model:           model,
			Endpoint:        cfg.BaseURL,
			HTTPClient:      &http.Client{Timeout: timeout},
		})
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
