package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Family Bedrock 模型家族，决定请求体与响应体的形状
type Family string

const (
	FamilyLlama   Family = "llama"
	FamilyMistral Family = "mistral"
	FamilyClaude  Family = "claude"
)

const anthropicVersion = "bedrock-2023-05-31"

// FamilyForModel 按模型 ID 前缀识别家族，支持 us./eu. 等跨区域推理前缀
func FamilyForModel(modelID string) (Family, error) {
	id := modelID
	if i := strings.Index(id, "."); i > 0 && i <= 4 && !strings.HasPrefix(id, "meta.") {
		switch id[:i] {
		case "us", "eu", "apac", "global":
			id = id[i+1:]
		}
	}
	switch {
	case strings.HasPrefix(id, "meta."):
		return FamilyLlama, nil
	case strings.HasPrefix(id, "mistral."):
		return FamilyMistral, nil
	case strings.HasPrefix(id, "anthropic."):
		return FamilyClaude, nil
	default:
		return "", fmt.Errorf("llm: unsupported bedrock model %q", modelID)
	}
}

type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
}

type mistralRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float32         `json:"temperature,omitempty"`
	TopP             float32         `json:"top_p,omitempty"`
}

// EncodeRequest 按家族生成 InvokeModel 请求体
func EncodeRequest(f Family, p Prompt) ([]byte, error) {
	switch f {
	case FamilyLlama:
		return json.Marshal(llamaRequest{
			Prompt:      llamaPrompt(p),
			MaxGenLen:   p.MaxTokens,
			Temperature: p.Temperature,
			TopP:        p.TopP,
		})
	case FamilyMistral:
		text := p.User
		if p.System != "" {
			text = p.System + "\n\n" + p.User
		}
		return json.Marshal(mistralRequest{
			Prompt:      "<s>[INST] " + text + " [/INST]",
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			TopP:        p.TopP,
		})
	case FamilyClaude:
		maxTokens := p.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 2048
		}
		return json.Marshal(claudeRequest{
			AnthropicVersion: anthropicVersion,
			System:           p.System,
			Messages:         []claudeMessage{{Role: "user", Content: p.User}},
			MaxTokens:        maxTokens,
			Temperature:      p.Temperature,
			TopP:             p.TopP,
		})
	default:
		return nil, fmt.Errorf("llm: unknown family %q", f)
	}
}

func llamaPrompt(p Prompt) string {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	if p.System != "" {
		b.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
		b.WriteString(p.System)
		b.WriteString("<|eot_id|>")
	}
	b.WriteString("<|start_header_id|>user<|end_header_id|>\n\n")
	b.WriteString(p.User)
	b.WriteString("<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n")
	return b.String()
}

type LlamaReply struct {
	Generation string `json:"generation"`
	StopReason string `json:"stop_reason"`
}

type MistralReply struct {
	Outputs []struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"outputs"`
}

type ClaudeReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Reply 各家族响应体的标签联合，只有与 Family 对应的字段非空
type Reply struct {
	Family  Family
	Llama   *LlamaReply
	Mistral *MistralReply
	Claude  *ClaudeReply
}

func DecodeReply(f Family, body []byte) (Reply, error) {
	r := Reply{Family: f}
	var err error
	switch f {
	case FamilyLlama:
		r.Llama = &LlamaReply{}
		err = json.Unmarshal(body, r.Llama)
	case FamilyMistral:
		r.Mistral = &MistralReply{}
		err = json.Unmarshal(body, r.Mistral)
	case FamilyClaude:
		r.Claude = &ClaudeReply{}
		err = json.Unmarshal(body, r.Claude)
	default:
		return r, fmt.Errorf("llm: unknown family %q", f)
	}
	if err != nil {
		return r, fmt.Errorf("llm: decode %s reply: %w", f, err)
	}
	return r, nil
}

// Text 取出生成文本
func (r Reply) Text() (string, error) {
	switch r.Family {
	case FamilyLlama:
		if r.Llama != nil {
			return r.Llama.Generation, nil
		}
	case FamilyMistral:
		if r.Mistral != nil && len(r.Mistral.Outputs) > 0 {
			return r.Mistral.Outputs[0].Text, nil
		}
	case FamilyClaude:
		if r.Claude != nil {
			for _, c := range r.Claude.Content {
				if c.Type == "" || c.Type == "text" {
					return c.Text, nil
				}
			}
		}
	}
	return "", errors.New("llm: reply has no text for family " + string(r.Family))
}
