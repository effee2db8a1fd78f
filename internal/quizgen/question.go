// Package quizgen 从上传文档中抽取选择题，并与模型生成的题目组合成测验
package quizgen

import "strings"

// Question 选择题，CorrectAnswer 为 Options 的下标
type Question struct {
	QuestionText  string   `json:"questionText" yaml:"questionText"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	Marks         int      `json:"marks" yaml:"marks"`
	Topic         string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

const (
	MinOptions = 2
	MaxOptions = 4
)

// Valid 至少两个选项且答案下标在范围内
func (q Question) Valid() bool {
	return strings.TrimSpace(q.QuestionText) != "" &&
		len(q.Options) >= MinOptions &&
		q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) &&
		q.Marks > 0
}

// textKey 题干去重用的规范化键
func textKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func letterIndex(letter string) int {
	if letter == "" {
		return -1
	}
	c := letter[0]
	switch {
	case c >= 'A' && c <= 'Z':
		return int(c - 'A')
	case c >= 'a' && c <= 'z':
		return int(c - 'a')
	}
	return -1
}
