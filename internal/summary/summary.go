// Package summary condenses transcripts by keeping the sentences with the
// highest TF-IDF weight, treating each sentence as its own document.
package summary

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultRate is used when callers pass a non-positive compression rate.
const DefaultRate = 0.3

var (
	lineBreaks  = regexp.MustCompile(`[\r\n]+`)
	spaces      = regexp.MustCompile(`\s+`)
	sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)
)

type sentenceScore struct {
	index  int
	weight float64
}

// Summarize returns ceil(n*rate) of the n input sentences, at least one,
// joined in their original order.
func Summarize(text string, rate float64) string {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return ""
	}
	keep := SelectionCount(len(sentences), rate)

	scores := score(sentences)
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].weight != scores[j].weight {
			return scores[i].weight > scores[j].weight
		}
		return scores[i].index < scores[j].index
	})

	picked := make([]int, 0, keep)
	for _, s := range scores[:keep] {
		picked = append(picked, s.index)
	}
	sort.Ints(picked)

	var b strings.Builder
	for _, idx := range picked {
		b.WriteString(sentences[idx])
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// SelectionCount is ceil(n*rate) clamped to [1, n]. The product is nudged
// down by a small epsilon so values like 10*0.3 do not round up to 4.
func SelectionCount(n int, rate float64) int {
	if n <= 0 {
		return 0
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	if rate > 1 {
		rate = 1
	}
	keep := int(math.Ceil(float64(n)*rate - 1e-9))
	if keep < 1 {
		keep = 1
	}
	if keep > n {
		keep = n
	}
	return keep
}

// Sentences normalizes text and splits it at terminal punctuation that is
// followed by whitespace or the end of input.
func Sentences(text string) []string {
	text = norm.NFC.String(text)
	text = lineBreaks.ReplaceAllString(text, " ")
	text = strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Tokens splits a sentence into case-folded runs of letters and digits.
func Tokens(sentence string) []string {
	fold := cases.Fold()
	fields := strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = fold.String(f)
	}
	return fields
}

func score(sentences []string) []sentenceScore {
	n := float64(len(sentences))
	tokenized := make([][]string, len(sentences))
	df := make(map[string]int)
	for i, s := range sentences {
		tokenized[i] = Tokens(s)
		seen := make(map[string]bool)
		for _, tok := range tokenized[i] {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	scores := make([]sentenceScore, len(sentences))
	for i, toks := range tokenized {
		tf := make(map[string]int, len(toks))
		var order []string
		for _, tok := range toks {
			if tf[tok] == 0 {
				order = append(order, tok)
			}
			tf[tok]++
		}
		// sum in first-occurrence order so equal sentences score identically
		var weight float64
		for _, tok := range order {
			weight += float64(tf[tok]) * math.Log(n/float64(df[tok]))
		}
		scores[i] = sentenceScore{index: i, weight: weight}
	}
	return scores
}
