package slidectx

import (
	"math"
	"strings"
	"unicode"
)

// Summary is a sublinear term-frequency vector over normalized tokens.
type Summary map[string]float64

// Cosine returns the cosine similarity between two summaries. Either
// side being empty yields 0.
func (s Summary) Cosine(other Summary) float64 {
	if len(s) == 0 || len(other) == 0 {
		return 0
	}
	shorter, longer := s, other
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	var dot float64
	for term, w := range shorter {
		if ow, ok := longer[term]; ok {
			dot += w * ow
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (s.norm() * other.norm())
}

func (s Summary) norm() float64 {
	var sum float64
	for _, w := range s {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// SummarizeText reduces free text to a Summary. Used for slide
// fingerprints and one-shot summaries; the rolling window maintains
// counts incrementally instead of calling this per update.
func SummarizeText(text string, minTokenLen int) Summary {
	counts := make(map[string]int)
	for _, tok := range Tokenize(text, minTokenLen) {
		counts[tok]++
	}
	return weigh(counts)
}

func weigh(counts map[string]int) Summary {
	if len(counts) == 0 {
		return nil
	}
	out := make(Summary, len(counts))
	for term, c := range counts {
		out[term] = 1 + math.Log(float64(c))
	}
	return out
}

// Tokenize lowercases, strips punctuation and drops stopwords and
// tokens shorter than minTokenLen.
func Tokenize(text string, minTokenLen int) []string {
	if minTokenLen <= 0 {
		minTokenLen = 3
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLen {
			continue
		}
		if isStopword(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isStopword(s string) bool {
	switch s {
	case "the", "and", "that", "this", "with", "for", "are", "was", "were",
		"have", "has", "had", "not", "but", "you", "your", "our", "their",
		"they", "them", "its", "about", "from", "into", "what", "which",
		"when", "where", "who", "how", "will", "would", "can", "could",
		"should", "just", "really", "very", "also", "more", "some", "like",
		"going", "gonna", "okay", "yeah", "right", "know", "think", "want",
		"here", "there", "now", "then", "well", "actually", "basically":
		return true
	}
	return false
}
