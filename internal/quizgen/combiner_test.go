package quizgen

import (
	"strconv"
	"testing"
)

func prefixed(prefix string, n int) []Question {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = prefix + " " + strconv.Itoa(i)
	}
	return makeQuestions(texts...)
}

func countPrefix(qs []Question, prefix string) int {
	n := 0
	for _, q := range qs {
		if len(q.QuestionText) >= len(prefix) && q.QuestionText[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func TestCombineBackfillsWhenModelUnderDelivers(t *testing.T) {
	res := Combine(prefixed("orig", 10), prefixed("ai", 2), 10, 0.7)

	if len(res.Questions) != 10 {
		t.Fatalf("len = %d, want 10", len(res.Questions))
	}
	if res.AITarget != 7 || res.AITaken != 2 {
		t.Fatalf("target=%d taken=%d", res.AITarget, res.AITaken)
	}
	if countPrefix(res.Questions, "orig") != 8 || countPrefix(res.Questions, "ai") != 2 {
		t.Fatalf("unexpected mix: %+v", res.Questions)
	}
}

func TestCombineAlwaysReturnsD(t *testing.T) {
	for d := 1; d <= 12; d++ {
		for usable := 0; usable <= d+2; usable++ {
			for _, share := range []float64{0, 0.3, 0.7, 1} {
				res := Combine(prefixed("orig", d), prefixed("ai", usable), d, share)
				if len(res.Questions) != d {
					t.Fatalf("d=%d usable=%d share=%v: len=%d", d, usable, share, len(res.Questions))
				}
			}
		}
	}
}

func TestCombineFiltersCollisions(t *testing.T) {
	originals := makeQuestions("What is H2O?", "What is NaCl?", "What is CO2?", "What is O3?")
	generated := makeQuestions("what is  h2o?", "What is CH4?", "What is CH4?", "What is NH3?")

	res := Combine(originals, generated, 4, 0.5)
	if res.Collisions != 2 {
		t.Fatalf("collisions = %d, want 2", res.Collisions)
	}
	if len(res.Questions) != 4 || res.AITaken != 2 {
		t.Fatalf("got %d questions, %d ai", len(res.Questions), res.AITaken)
	}
	if res.Questions[2].QuestionText != "What is CH4?" || res.Questions[3].QuestionText != "What is NH3?" {
		t.Fatalf("unexpected AI picks: %+v", res.Questions[2:])
	}
}

func TestCombineFewOriginalsUsesMoreAI(t *testing.T) {
	res := Combine(prefixed("orig", 1), prefixed("ai", 5), 4, 0.25)
	if len(res.Questions) != 4 || res.AITaken != 3 {
		t.Fatalf("len=%d ai=%d", len(res.Questions), res.AITaken)
	}
}
