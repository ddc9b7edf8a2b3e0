package summary

import (
	"strings"
	"testing"
)

func TestSummarizeScenario(t *testing.T) {
	got := Summarize("Cat sat. Dog ran. Cat slept.", 0.34)
	if got != "Cat sat. Dog ran." {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestSelectionCount(t *testing.T) {
	tests := []struct {
		n    int
		rate float64
		want int
	}{
		{3, 0.34, 2},
		{3, 0.33, 1},
		{10, 0.3, 3},
		{10, 0.31, 4},
		{5, 1, 5},
		{5, 0.0001, 1},
		{5, 7, 5},
		{4, 0, 2},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		if got := SelectionCount(tt.n, tt.rate); got != tt.want {
			t.Errorf("SelectionCount(%d, %v) = %d, want %d", tt.n, tt.rate, got, tt.want)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n"} {
		if got := Summarize(in, 0.5); got != "" {
			t.Errorf("Summarize(%q) = %q, want empty", in, got)
		}
	}
}

func TestSummarizeKeepsAtLeastOneSentence(t *testing.T) {
	got := Summarize("Only one sentence here. And a second one.", 0.000001)
	if got == "" || len(Sentences(got)) != 1 {
		t.Fatalf("expected exactly one sentence, got %q", got)
	}
}

func TestSummarizePreservesOriginalOrder(t *testing.T) {
	text := "The meeting started late.\nBudget numbers for the quarter were reviewed in detail.\n" +
		"Everyone agreed. Hiring plans for engineering and design were debated at length. The meeting ended."
	sentences := Sentences(text)
	got := Sentences(Summarize(text, 0.5))
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %v", len(got), got)
	}
	last := -1
	for _, s := range got {
		idx := -1
		for i, orig := range sentences {
			if orig == s {
				idx = i
				break
			}
		}
		if idx <= last {
			t.Fatalf("sentence %q out of order in %v", s, got)
		}
		last = idx
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. Beta delta. Gamma epsilon zeta eta. ", 5)
	first := Summarize(text, 0.4)
	for i := 0; i < 20; i++ {
		if got := Summarize(text, 0.4); got != first {
			t.Fatalf("run %d differs: %q vs %q", i, got, first)
		}
	}
}

func TestSentencesRemovesLineBreaks(t *testing.T) {
	got := Sentences("First line\ncontinues here. Second?\r\nThird!")
	want := []string{"First line continues here.", "Second?", "Third!"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSentencesKeepsDecimals(t *testing.T) {
	got := Sentences("Pi is 3.14 roughly. Done")
	if len(got) != 2 || got[0] != "Pi is 3.14 roughly." || got[1] != "Done" {
		t.Fatalf("unexpected split %v", got)
	}
}

func TestTokensFoldCase(t *testing.T) {
	got := Tokens("Straße, STRASSE and Cat's")
	want := []string{"strasse", "strasse", "and", "cat", "s"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
