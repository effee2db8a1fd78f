package quizgen

import "testing"

const bankYAML = `
- match: chemistry_10
  questions:
    - questionText: Which gas is released when zinc reacts with dilute sulfuric acid?
      options: [Hydrogen, Carbon dioxide, Nitrogen, Oxygen]
      correctAnswer: 0
    - questionText: Broken entry
      options: [Only]
      correctAnswer: 0
- match: English_10
  questions:
    - questionText: Which element most contributes to suspense?
      options: [Imagery, Flashback, Foreshadowing, Dialogue]
      correctAnswer: 2
      marks: 2
`

func TestParseYAMLFallbackBank(t *testing.T) {
	bank, err := ParseYAMLFallbackBank([]byte(bankYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	qs, ok := bank.Lookup("uploads/CHEMISTRY_10 term 1.pdf")
	if !ok || len(qs) != 1 {
		t.Fatalf("chemistry lookup = %v, %v", qs, ok)
	}
	if qs[0].Marks != 1 {
		t.Fatalf("default marks not applied: %+v", qs[0])
	}

	qs, ok = bank.Lookup("english_10.pdf")
	if !ok || qs[0].Marks != 2 {
		t.Fatalf("english lookup = %v, %v", qs, ok)
	}

	if _, ok := bank.Lookup("history.pdf"); ok {
		t.Fatal("unexpected match for history.pdf")
	}
}

func TestParseYAMLFallbackBankRequiresMatch(t *testing.T) {
	if _, err := ParseYAMLFallbackBank([]byte("- questions: []\n")); err == nil {
		t.Fatal("expected error for entry without match")
	}
}

func TestFallbackBankReplace(t *testing.T) {
	bank := NewYAMLFallbackBank(nil)
	next, err := ParseYAMLFallbackBank([]byte(bankYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bank.Replace(next)
	if bank.Len() != 2 {
		t.Fatalf("len = %d", bank.Len())
	}
}
