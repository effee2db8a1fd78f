package quizgen

import "math"

type CombineResult struct {
	Questions []Question
	// Generated 中实际采用的数量
	AITaken int
	// AITarget 按比例计算的目标数量
	AITarget int
	// Collisions 与原题或更早的生成题题干重复而被过滤的数量
	Collisions int
}

// Combine 按 aiShare 比例组合原题与生成题。生成题不足目标数量时用原题补齐，
// originals 不少于 d 道时结果恰为 d 道。原题在前，生成题在后。
func Combine(originals, generated []Question, d int, aiShare float64) CombineResult {
	if d <= 0 {
		return CombineResult{}
	}
	target := AITarget(d, aiShare)
	res := CombineResult{AITarget: target}

	seen := make(map[string]struct{}, len(originals)+len(generated))
	for _, q := range originals {
		seen[textKey(q.QuestionText)] = struct{}{}
	}
	usable := make([]Question, 0, len(generated))
	for _, q := range generated {
		k := textKey(q.QuestionText)
		if _, dup := seen[k]; dup {
			res.Collisions++
			continue
		}
		seen[k] = struct{}{}
		usable = append(usable, q)
	}

	aiTaken := min(target, len(usable))
	fromOriginals := min(d-aiTaken, len(originals))

	// 原题不足时再用剩余生成题补齐
	if fromOriginals+aiTaken < d {
		aiTaken = min(d-fromOriginals, len(usable))
	}

	res.Questions = make([]Question, 0, fromOriginals+aiTaken)
	res.Questions = append(res.Questions, originals[:fromOriginals]...)
	res.Questions = append(res.Questions, usable[:aiTaken]...)
	res.AITaken = aiTaken
	return res
}

// AITarget round(d*aiShare)，aiShare 截断到 [0, 1]
func AITarget(d int, aiShare float64) int {
	if d <= 0 {
		return 0
	}
	aiShare = math.Max(0, math.Min(1, aiShare))
	return min(int(math.Round(float64(d)*aiShare)), d)
}
