package processing

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/morph"
)

// ContractVersion names the character filter and stop-word list below. The
// classifier was trained against exactly this preprocessing; bump it together
// with the model whenever either changes.
const ContractVersion = "hangul-okt-stem-v1"

// \s only covers ASCII; \p{Z} adds separators such as U+3000 and U+00A0.
var nonHangul = regexp.MustCompile(`[^ㄱ-ㅎㅏ-ㅣ가-힣\s\p{Z}]`)

var stopwords = map[string]struct{}{
	"의": {}, "가": {}, "이": {}, "은": {}, "들": {}, "는": {},
	"좀": {}, "잘": {}, "걍": {}, "과": {}, "도": {}, "를": {},
	"으로": {}, "자": {}, "에": {}, "와": {}, "한": {}, "하다": {},
	"되다": {}, "있다": {}, "이다": {}, "그": {}, "저": {}, "것": {},
}

// FilterHangul deletes every character that is not a Hangul syllable,
// Hangul jamo or whitespace. Digits and Latin letters go too.
func FilterHangul(input string) string {
	return nonHangul.ReplaceAllString(input, "")
}

// IsStopword reports whether token is dropped after tokenization.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Normalizer turns extracted text into the token form the classifier expects.
type Normalizer struct {
	analyzer morph.Analyzer
}

// NewNormalizer creates a Normalizer backed by analyzer.
func NewNormalizer(analyzer morph.Analyzer) *Normalizer {
	return &Normalizer{analyzer: analyzer}
}

// Normalize filters, tokenizes and strips stop-words from items, in order.
// Items with nothing left after filtering are dropped before tokenization;
// items whose tokens are all stop-words are kept with empty Tokens.
func (n *Normalizer) Normalize(ctx context.Context, items []models.TextItem) ([]models.NormalizedItem, error) {
	type kept struct {
		origin   models.TextItem
		filtered string
	}

	survivors := make([]kept, 0, len(items))
	for _, it := range items {
		filtered := FilterHangul(it.RawText)
		if strings.TrimSpace(filtered) == "" {
			continue
		}
		survivors = append(survivors, kept{origin: it, filtered: filtered})
	}

	out := make([]models.NormalizedItem, 0, len(survivors))
	for _, s := range survivors {
		morphs, err := n.analyzer.Morphs(ctx, s.filtered)
		if err != nil {
			return nil, fmt.Errorf("tokenize: %w", err)
		}

		tokens := make([]string, 0, len(morphs))
		for _, m := range morphs {
			if IsStopword(m) {
				continue
			}
			tokens = append(tokens, m)
		}
		out = append(out, models.NormalizedItem{Origin: s.origin, Tokens: tokens})
	}

	return out, nil
}

// TopTokens returns the most frequent tokens across items, ties broken
// alphabetically. Tokens shorter than minLen runes are ignored.
func TopTokens(items []models.NormalizedItem, limit, minLen int) []string {
	freq := make(map[string]int)
	for _, it := range items {
		for _, token := range it.Tokens {
			if len([]rune(token)) < minLen {
				continue
			}
			freq[token]++
		}
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}
