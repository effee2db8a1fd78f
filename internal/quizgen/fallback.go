package quizgen

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FallbackProvider 模型调用失败时提供备用题目，无匹配时返回 ok=false
type FallbackProvider interface {
	Lookup(filename string) (questions []Question, ok bool)
}

type FallbackEntry struct {
	Match     string     `yaml:"match"`
	Questions []Question `yaml:"questions"`
}

// YAMLFallbackBank 按文件名子串（不区分大小写）匹配的备用题库
type YAMLFallbackBank struct {
	mu      sync.RWMutex
	entries []FallbackEntry
}

func NewYAMLFallbackBank(entries []FallbackEntry) *YAMLFallbackBank {
	return &YAMLFallbackBank{entries: normalizeEntries(entries)}
}

func LoadYAMLFallbackBank(path string) (*YAMLFallbackBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback bank: %w", err)
	}
	return ParseYAMLFallbackBank(data)
}

func ParseYAMLFallbackBank(data []byte) (*YAMLFallbackBank, error) {
	var entries []FallbackEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse fallback bank: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Match) == "" {
			return nil, fmt.Errorf("fallback bank entry %d: match is required", i)
		}
	}
	return NewYAMLFallbackBank(entries), nil
}

func normalizeEntries(entries []FallbackEntry) []FallbackEntry {
	out := make([]FallbackEntry, 0, len(entries))
	for _, e := range entries {
		valid := make([]Question, 0, len(e.Questions))
		for _, q := range e.Questions {
			if q.Marks <= 0 {
				q.Marks = 1
			}
			if q.Valid() && len(q.Options) <= MaxOptions {
				valid = append(valid, q)
			}
		}
		out = append(out, FallbackEntry{Match: strings.ToLower(e.Match), Questions: valid})
	}
	return out
}

func (b *YAMLFallbackBank) Lookup(filename string) ([]Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	name := strings.ToLower(filename)
	for _, e := range b.entries {
		if strings.Contains(name, e.Match) && len(e.Questions) > 0 {
			out := make([]Question, len(e.Questions))
			copy(out, e.Questions)
			return out, true
		}
	}
	return nil, false
}

// Replace 热更新时整体替换题库
func (b *YAMLFallbackBank) Replace(other *YAMLFallbackBank) {
	other.mu.RLock()
	entries := other.entries
	other.mu.RUnlock()

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
}

func (b *YAMLFallbackBank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
