package quizgen

import (
	"math/rand/v2"
)

// DesiredCount 保留解析题目数量的一半（向上取整）
func DesiredCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

type SampleResult struct {
	Questions []Question
	// UsedDuplicates 不重复的题干不足 d 道时，为补足数量使用了重复题干
	UsedDuplicates bool
	UniqueCount    int
}

// Sample 随机打乱后优先挑选题干不重复的题目；不足 d 道时依次用剩余题目补足，
// 仍不足时循环复用。输入非空时总是返回 d 道。rng 为 nil 时使用全局随机源。
func Sample(questions []Question, d int, rng *rand.Rand) SampleResult {
	if len(questions) == 0 || d <= 0 {
		return SampleResult{}
	}

	shuffled := make([]Question, len(questions))
	copy(shuffled, questions)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if rng != nil {
		rng.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}

	res := SampleResult{Questions: make([]Question, 0, d)}
	picked := make([]bool, len(shuffled))
	seen := make(map[string]struct{}, len(shuffled))
	for i, q := range shuffled {
		if len(res.Questions) >= d {
			break
		}
		k := textKey(q.QuestionText)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		picked[i] = true
		res.Questions = append(res.Questions, q)
	}
	res.UniqueCount = len(res.Questions)

	for i, q := range shuffled {
		if len(res.Questions) >= d {
			break
		}
		if picked[i] {
			continue
		}
		res.UsedDuplicates = true
		res.Questions = append(res.Questions, q)
	}

	for i := 0; len(res.Questions) < d; i++ {
		res.UsedDuplicates = true
		res.Questions = append(res.Questions, shuffled[i%len(shuffled)])
	}
	return res
}
