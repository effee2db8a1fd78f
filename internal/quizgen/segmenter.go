package quizgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	questionStartRe = regexp.MustCompile(`(?m)^[ \t]*Q?(\d+)[.)][ \t]*`)
	optionLineRe    = regexp.MustCompile(`^[ \t]*([A-Da-d])[.)][ \t]*(.*?)[ \t]*$`)
	// 行首的 "Answer Key:" 之类；行中的复数 "answers" 须位于行尾（"Correct answers:"）
	answersHeaderRe = regexp.MustCompile(`(?im)^[ \t]*answers?(?:[ \t]+key)?[ \t]*(?::|-|$)|\banswers(?:[ \t]+key)?[ \t]*[:\-]?[ \t]*$`)
	answerPairRe    = regexp.MustCompile(`(\d+)[ \t]*[.):\-][ \t]*([A-Da-d])\b`)
)

// SkipReason 被丢弃题目的题号与原因
type SkipReason struct {
	Ordinal int    `json:"ordinal"`
	Reason  string `json:"reason"`
}

func (s SkipReason) String() string {
	return fmt.Sprintf("question %d: %s", s.Ordinal, s.Reason)
}

type SegmentResult struct {
	Questions []Question
	Skipped   []SkipReason
}

// Segment 按题号切分题目，按答案区建立题号到选项字母的映射。
// 结果只依赖输入文本。
func Segment(text string) SegmentResult {
	text = NormalizeNewlines(text)

	body, keySection := text, ""
	if loc := answersHeaderRe.FindStringIndex(text); loc != nil {
		body, keySection = text[:loc[0]], text[loc[1]:]
	}
	key := parseAnswerKey(keySection)

	var res SegmentResult
	starts := questionStarts(body)
	for i, m := range starts {
		end := len(body)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		ordinal, _ := strconv.Atoi(body[m[2]:m[3]])
		questionText, options, badOptions := parseBlock(body[m[1]:end])

		letter, ok := key[ordinal]
		switch {
		case badOptions != "":
			res.Skipped = append(res.Skipped, SkipReason{ordinal, badOptions})
		case questionText == "":
			res.Skipped = append(res.Skipped, SkipReason{ordinal, "missing question text"})
		case len(options) < MinOptions:
			res.Skipped = append(res.Skipped, SkipReason{ordinal, fmt.Sprintf("only %d option(s)", len(options))})
		case len(options) > MaxOptions:
			res.Skipped = append(res.Skipped, SkipReason{ordinal, fmt.Sprintf("%d options exceeds %d", len(options), MaxOptions)})
		case !ok:
			res.Skipped = append(res.Skipped, SkipReason{ordinal, "no answer key entry"})
		case letterIndex(letter) >= len(options):
			res.Skipped = append(res.Skipped, SkipReason{ordinal, fmt.Sprintf("answer %s outside %d options", letter, len(options))})
		default:
			res.Questions = append(res.Questions, Question{
				QuestionText:  questionText,
				Options:       options,
				CorrectAnswer: letterIndex(letter),
				Marks:         1,
			})
		}
	}
	return res
}

// questionStarts 题号后紧跟数字的视为小数（"3.5 grams"），不作为题目开头
func questionStarts(body string) [][]int {
	all := questionStartRe.FindAllStringSubmatchIndex(body, -1)
	starts := all[:0]
	for _, m := range all {
		// m[3] 为题号结束位置，其后一位是 "." 或 ")"
		if next := m[3] + 1; next < len(body) && body[next] >= '0' && body[next] <= '9' {
			continue
		}
		starts = append(starts, m)
	}
	return starts
}

// parseBlock 题干取第一段（遇空行或首个选项行结束），选项按字母定位。
// 字母须从 A 起连续且内容非空，否则第三个返回值给出跳过原因
func parseBlock(block string) (string, []string, string) {
	var (
		textLines []string
		options   []string
		inText    = true
	)
	for _, line := range strings.Split(block, "\n") {
		if m := optionLineRe.FindStringSubmatch(line); m != nil {
			inText = false
			letter := strings.ToUpper(m[1])
			if letterIndex(letter) != len(options) {
				return "", nil, fmt.Sprintf("option %s out of order", letter)
			}
			if m[2] == "" {
				return "", nil, fmt.Sprintf("option %s is empty", letter)
			}
			options = append(options, m[2])
			continue
		}
		if !inText {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(textLines) > 0 {
				inText = false
			}
			continue
		}
		textLines = append(textLines, trimmed)
	}
	return strings.Join(textLines, " "), options, ""
}

// parseAnswerKey 相同题号以第一次出现为准
func parseAnswerKey(section string) map[int]string {
	key := make(map[int]string)
	for _, m := range answerPairRe.FindAllStringSubmatch(section, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, seen := key[n]; !seen {
			key[n] = strings.ToUpper(m[2])
		}
	}
	return key
}
