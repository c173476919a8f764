package analysis

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/arturoeanton/repolens/internal/domain"
)

// TopWordsLimit is the number of words kept in summaries.
const TopWordsLimit = 10

var stopWords = toSet(
	"the", "and", "for", "with", "from", "this", "that", "into", "onto", "are",
	"was", "were", "not", "but", "all", "any", "can", "has", "have", "had", "its",
	"our", "out", "you", "your", "via", "when", "then", "than", "also", "some",
	"more", "most", "only", "over", "such", "them", "they", "their", "there",
	"these", "those", "will", "would", "should", "could", "been", "being", "what",
	"which", "who", "whom", "why", "how", "about", "after", "before", "again",
	"each", "other", "same", "very", "just", "off", "per", "too", "where",
	"while", "does", "did", "both", "here", "until", "upon", "yet", "now",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Tokenize case-folds a subject line, strips punctuation and drops
// stop-words and tokens of two runes or fewer.
func Tokenize(subject string) []string {
	s := strings.ToLower(subject)
	s = strings.NewReplacer("'", "", "’", "").Replace(s)

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TopWords ranks the words of subjects by frequency. Ties keep the order in
// which the words were first seen. limit <= 0 returns every word.
func TopWords(subjects []string, limit int) []domain.WordCount {
	counts := map[string]int{}
	var order []string

	for _, subject := range subjects {
		for _, tok := range Tokenize(subject) {
			if _, ok := counts[tok]; !ok {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	ranked := make([]domain.WordCount, len(order))
	for i, w := range order {
		ranked[i] = domain.WordCount{Word: w, Count: counts[w]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
