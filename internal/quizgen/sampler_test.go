package quizgen

import (
	"math/rand/v2"
	"strconv"
	"testing"
)

func makeQuestions(texts ...string) []Question {
	qs := make([]Question, len(texts))
	for i, t := range texts {
		qs[i] = Question{QuestionText: t, Options: []string{"a", "b"}, Marks: 1}
	}
	return qs
}

func numbered(n int) []Question {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = "question " + strconv.Itoa(i)
	}
	return makeQuestions(texts...)
}

func TestDesiredCount(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 1, 7: 4, 10: 5}
	for n, want := range cases {
		if got := DesiredCount(n); got != want {
			t.Errorf("DesiredCount(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSampleUniqueWhenEnough(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7+1))
		qs := append(numbered(8), makeQuestions("question 0", "question 1")...)

		for d := 1; d <= 8; d++ {
			res := Sample(qs, d, rng)
			if len(res.Questions) != d {
				t.Fatalf("seed %d d %d: got %d questions", seed, d, len(res.Questions))
			}
			if res.UsedDuplicates {
				t.Fatalf("seed %d d %d: duplicates used with enough unique questions", seed, d)
			}
			seen := map[string]bool{}
			for _, q := range res.Questions {
				if seen[q.QuestionText] {
					t.Fatalf("seed %d d %d: duplicate %q", seed, d, q.QuestionText)
				}
				seen[q.QuestionText] = true
			}
		}
	}
}

func TestSampleOverflowUsesDuplicatesOnlyAtTheEnd(t *testing.T) {
	qs := makeQuestions("a", "a", "b", "b", "c")
	rng := rand.New(rand.NewPCG(1, 2))

	for d := 4; d <= 9; d++ {
		res := Sample(qs, d, rng)
		if len(res.Questions) != d {
			t.Fatalf("d %d: got %d", d, len(res.Questions))
		}
		if !res.UsedDuplicates || res.UniqueCount != 3 {
			t.Fatalf("d %d: used=%v unique=%d", d, res.UsedDuplicates, res.UniqueCount)
		}
		seen := map[string]bool{}
		for _, q := range res.Questions[:3] {
			if seen[q.QuestionText] {
				t.Fatalf("d %d: duplicate inside unique prefix %v", d, res.Questions)
			}
			seen[q.QuestionText] = true
		}
	}
}

func TestSampleEmpty(t *testing.T) {
	if res := Sample(nil, 3, nil); len(res.Questions) != 0 {
		t.Fatalf("got %+v", res)
	}
}

func TestSampleDoesNotMutateInput(t *testing.T) {
	qs := numbered(6)
	Sample(qs, 3, rand.New(rand.NewPCG(3, 4)))
	for i, q := range qs {
		if q.QuestionText != "question "+strconv.Itoa(i) {
			t.Fatalf("input reordered at %d: %q", i, q.QuestionText)
		}
	}
}
