package quizgen

import (
	"assessment_backend/internal/util"
	"assessment_backend/pkg/llm"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Source 生成题目的来源
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	// SourceNone 模型失败且备用题库无匹配
	SourceNone Source = "none"
)

var correctMarkerRe = regexp.MustCompile(`(?im)^[ \t*]*(?:correct(?:[ \t]+(?:answer|option))?|answer)[ \t*]*[:\-][ \t*]*\(?([A-Da-d])\b`)

type GenerateRequest struct {
	Filename  string
	Subject   string
	Originals []Question
	Count     int
}

type AugmentResult struct {
	Questions []Question
	Source    Source
	// Dropped 模型回复中格式不完整而被丢弃的题目数
	Dropped  int
	RawReply string
	Warnings []string
}

type AugmenterOptions struct {
	Fallback        FallbackProvider
	FallbackOnError bool
	MaxTokens       int
	Temperature     float32
}

// Augmenter 让托管模型参照原题生成风格相近的新题
type Augmenter struct {
	client  llm.Client
	retrier *llm.Retrier

	mu   sync.RWMutex
	opts AugmenterOptions
}

func NewAugmenter(client llm.Client, retrier *llm.Retrier, opts AugmenterOptions) *Augmenter {
	if retrier == nil {
		retrier = llm.NewRetrier(0, 0)
	}
	return &Augmenter{client: client, retrier: retrier, opts: opts}
}

func (a *Augmenter) Provider() string {
	if a.client == nil {
		return ""
	}
	return a.client.Provider()
}

// SetOptions 配置热更新
func (a *Augmenter) SetOptions(opts AugmenterOptions) {
	a.mu.Lock()
	a.opts = opts
	a.mu.Unlock()
}

func (a *Augmenter) options() AugmenterOptions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.opts
}

// Generate 限流时按退避策略重试，重试耗尽返回 ErrExternalService；
// 其他模型错误在 FallbackOnError 开启时改用备用题库。
func (a *Augmenter) Generate(ctx context.Context, req GenerateRequest) (AugmentResult, error) {
	opts := a.options()
	if req.Count <= 0 {
		return AugmentResult{Source: SourceModel}, nil
	}

	var reply string
	err := errors.New("no model client configured")
	if a.client != nil {
		prompt := BuildGenerationPrompt(req)
		prompt.MaxTokens = opts.MaxTokens
		prompt.Temperature = opts.Temperature
		err = a.retrier.Do(ctx, func(ctx context.Context) error {
			var callErr error
			reply, callErr = a.client.Complete(ctx, prompt)
			return callErr
		})
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AugmentResult{}, ctxErr
		}
		if llm.IsThrottled(err) || !opts.FallbackOnError {
			return AugmentResult{}, fmt.Errorf("%w: question generation: %w", util.ErrExternalService, err)
		}
		return a.fromFallback(opts, req, err), nil
	}

	questions, dropped := ParseGeneratedQuestions(reply)
	res := AugmentResult{Source: SourceModel, Dropped: dropped, RawReply: reply}
	if dropped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropped %d malformed generated question(s)", dropped))
	}
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	if len(questions) == 0 {
		res.Warnings = append(res.Warnings, "model reply contained no usable questions")
	}
	res.Questions = questions
	return res, nil
}

func (a *Augmenter) fromFallback(opts AugmenterOptions, req GenerateRequest, cause error) AugmentResult {
	warning := fmt.Sprintf("question generation failed (%v)", cause)
	if opts.Fallback != nil {
		if qs, ok := opts.Fallback.Lookup(req.Filename); ok {
			if len(qs) > req.Count {
				qs = qs[:req.Count]
			}
			return AugmentResult{
				Questions: qs,
				Source:    SourceFallback,
				Warnings:  []string{warning + "; using fallback questions"},
			}
		}
	}
	return AugmentResult{
		Source:   SourceNone,
		Warnings: []string{warning + "; no AI or fallback questions available for this file"},
	}
}

func BuildGenerationPrompt(req GenerateRequest) llm.Prompt {
	var b strings.Builder
	b.WriteString("Here are some assessment questions")
	if req.Subject != "" {
		fmt.Fprintf(&b, " for %s", req.Subject)
	}
	b.WriteString(":\n")
	for i, q := range req.Originals {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.QuestionText)
	}
	fmt.Fprintf(&b, `
Generate %d new multiple-choice questions that are similar in style and difficulty.
Do not repeat any of the questions above.
Format each question exactly like:

1. Question text?
A. Option1
B. Option2
C. Option3
D. Option4
Correct: B

Return only the numbered questions.`, req.Count)

	return llm.Prompt{
		System: "You are an experienced teacher who writes clear multiple-choice assessment questions.",
		User:   b.String(),
		TopP:   0.9,
	}
}

// ParseGeneratedQuestions 解析模型的自由文本回复，只保留恰好 4 个选项且正确答案可解析的题目
func ParseGeneratedQuestions(reply string) ([]Question, int) {
	reply = NormalizeNewlines(reply)
	starts := questionStarts(reply)

	var (
		out     []Question
		dropped int
	)
	for i, m := range starts {
		end := len(reply)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		block := reply[m[1]:end]

		text, options, badOptions := parseBlock(block)
		marker := correctMarkerRe.FindStringSubmatch(block)
		if badOptions != "" || text == "" || len(options) != MaxOptions || marker == nil {
			dropped++
			continue
		}
		idx := letterIndex(marker[1])
		if idx < 0 || idx >= len(options) {
			dropped++
			continue
		}
		out = append(out, Question{
			QuestionText:  text,
			Options:       options,
			CorrectAnswer: idx,
			Marks:         1,
		})
	}
	return out, dropped
}
