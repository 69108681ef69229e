package morph

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Rules is an in-process analyzer built from a closed list of particles and
// predicate endings. It separates particles into their own tokens and
// rewrites conjugated predicates to "<stem>다", honouring the batchim
// agreement of particles and the common vowel contractions of past and
// polite forms. It needs no external service; Remote gives exact parity
// with the analyzer the classifier was trained with.
type Rules struct{}

// NewRules returns the built-in analyzer.
func NewRules() *Rules {
	return &Rules{}
}

type particle struct {
	text string
	// after restricts the preceding syllable: 1 needs a batchim, -1 needs none, 0 any.
	after int
}

// Longest first.
var particles = []particle{
	{"에서는", 0}, {"에게서", 0}, {"으로는", 1}, {"이에요", 1},
	{"에서", 0}, {"에게", 0}, {"한테", 0}, {"까지", 0}, {"부터", 0}, {"처럼", 0},
	{"보다", 0}, {"만큼", 0}, {"이랑", 1}, {"으로", 1}, {"에요", -1}, {"예요", -1},
	{"은", 1}, {"는", -1}, {"이", 1}, {"가", -1}, {"을", 1}, {"를", -1},
	{"과", 1}, {"와", -1}, {"로", -1}, {"랑", -1}, {"의", 0}, {"에", 0},
	{"도", 0}, {"만", 0},
}

type ending struct {
	text string
	// contracted endings only follow a contracted vowel or a past-tense stem.
	contracted bool
	// bieup endings attach to a stem whose last syllable carries ㅂ.
	bieup bool
	// nieun endings follow a ㄴ batchim that belongs to the ending ("간다").
	nieun bool
	// ha endings are the adnominal 한 of 하다 predicates ("조용한").
	ha bool
	// accepts restricts the last stem syllable when set.
	accepts func(s syllable) bool
}

// Longest first; among equal lengths the first match wins.
var endings = []ending{
	{text: "습니다"}, {text: "습니까"},
	{text: "니다", bieup: true}, {text: "니까", bieup: true},
	{text: "네요"}, {text: "군요"}, {text: "어요"}, {text: "아요"}, {text: "여요"},
	{text: "어서"}, {text: "아서"}, {text: "지만"}, {text: "는데"}, {text: "은데"},
	{text: "는다", accepts: closedSyllable},
	{text: "네"}, {text: "죠"},
	{text: "다", nieun: true}, {text: "다"},
	{text: "요", contracted: true}, {text: "서", contracted: true},
	{text: "은", accepts: predicateFinal},
	{text: "는", accepts: closedSyllable},
	{text: "한", ha: true},
	{text: "아", accepts: brightVowelStem},
	{text: "어", accepts: darkVowelStem},
}

// nouns that end in 한 without being 하다 adnominals.
var nounsEndingHan = map[string]bool{
	"제한": true, "권한": true, "기한": true, "무한": true, "유한": true,
	"최소한": true, "최대한": true, "대한민국": true,
}

// stems whose ㅆ belongs to the word itself, not the past tense.
var lexicalSsangSio = map[rune]bool{'있': true, '밌': true}

// Morphs implements Analyzer.
func (r *Rules) Morphs(_ context.Context, text string) ([]string, error) {
	var tokens []string
	for _, word := range strings.Fields(text) {
		for _, run := range splitScripts(word) {
			tokens = append(tokens, analyzeRun(run)...)
		}
	}
	return tokens, nil
}

// splitScripts separates runs of full syllables from runs of bare jamo
// ("좋아요ㅋㅋ" -> "좋아요", "ㅋㅋ").
func splitScripts(word string) []string {
	var (
		out   []string
		start int
		prev  = -1
	)
	for i, r := range word {
		kind := 0
		if isSyllable(r) {
			kind = 1
		}
		if prev != -1 && kind != prev {
			out = append(out, word[start:i])
			start = i
		}
		prev = kind
	}
	if start < len(word) {
		out = append(out, word[start:])
	}
	return out
}

func analyzeRun(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 || !isSyllable(runes[0]) {
		return []string{word}
	}
	if stem, ok := predicate(runes); ok {
		return []string{stem + "다"}
	}
	if noun, p, ok := splitParticle(runes); ok {
		return []string{noun, p}
	}
	return []string{word}
}

func predicate(runes []rune) (string, bool) {
	word := string(runes)
	for _, e := range endings {
		if !strings.HasSuffix(word, e.text) {
			continue
		}
		stem := []rune(strings.TrimSuffix(word, e.text))
		if len(stem) == 0 {
			continue
		}
		last := len(stem) - 1

		s, _ := decompose(stem[last])
		switch {
		case e.bieup:
			if s.final != finalBieup {
				continue
			}
			s.final = finalNone
			stem[last] = s.rune()
		case e.nieun:
			if s.final != finalNieun {
				continue
			}
			s.final = finalNone
			stem[last] = s.rune()
		case e.ha:
			if nounsEndingHan[word] {
				continue
			}
			stem = append(stem, '하')
		case e.contracted:
			if s.final != finalSsangSio && !isContractedVowel(s, len(stem)) {
				continue
			}
		case e.accepts != nil:
			if !e.accepts(s) {
				continue
			}
		}

		return string(normalizeStem(stem, e.contracted)), true
	}
	return "", false
}

// normalizeStem strips the past-tense marker and undoes vowel contraction
// on the last syllable: 했->하, 됐->되, 봤->보, 줬->주, 샀->사, 좋았->좋.
// Without a past marker the vowel is only restored when the ending itself
// implies contraction.
func normalizeStem(stem []rune, contracted bool) []rune {
	last := len(stem) - 1
	s, ok := decompose(stem[last])
	if !ok || lexicalSsangSio[stem[last]] {
		return stem
	}

	if s.final == finalSsangSio {
		if len(stem) > 1 && s.initial == initialIeung && (s.medial == medialA || s.medial == medialEo || s.medial == medialYeo) {
			return stem[:last]
		}
		s.final = finalNone
		contracted = true
	}
	if contracted {
		s = uncontract(s)
	}
	stem[last] = s.rune()
	return stem
}

// isContractedVowel reports whether s looks like a contracted predicate
// ending: 해 anywhere ("좋아해"), 봐/돼/줘 only as a whole stem so nouns
// like "교과" are left alone.
func isContractedVowel(s syllable, stemLen int) bool {
	if s.final != finalNone {
		return false
	}
	switch s.medial {
	case medialWa, medialWae, medialWo:
		return stemLen == 1
	case medialAe:
		return s.initial == initialHieut
	}
	return false
}

func uncontract(s syllable) syllable {
	switch {
	case s.medial == medialAe && s.initial == initialHieut:
		s.medial = medialA
	case s.medial == medialWae:
		s.medial = medialOe
	case s.medial == medialWa:
		s.medial = medialO
	case s.medial == medialWo:
		s.medial = medialU
	case s.medial == medialYeo && s.initial != initialIeung:
		s.medial = medialI
	}
	return s
}

func splitParticle(runes []rune) (string, string, bool) {
	word := string(runes)
	for _, p := range particles {
		if !strings.HasSuffix(word, p.text) {
			continue
		}
		noun := strings.TrimSuffix(word, p.text)
		n := utf8.RuneCountInString(noun)
		// One-syllable particles are only split off nouns of two or more
		// syllables; "차가" stays whole.
		if n == 0 || (utf8.RuneCountInString(p.text) == 1 && n < 2) {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(noun)
		switch p.after {
		case 1:
			if !hasFinal(last) {
				continue
			}
		case -1:
			if hasFinal(last) && !(p.text == "로" && finalOf(last) == finalRieul) {
				continue
			}
		}
		return noun, p.text, true
	}
	return "", "", false
}

// predicateFinal reports batchim that end adjective stems far more often
// than nouns: ㅎ, ㅈ, ㅌ, ㅍ and most double consonants ("좋은", "많은",
// "같은"). ㄳ and ㅄ are left out for nouns like "몫" and "값".
func predicateFinal(s syllable) bool {
	switch s.final {
	case finalNieunJieut, finalNieunHieut, finalRieulGiyeok,
		finalRieulMieum, finalRieulBieup, finalRieulSiot, finalRieulTieut,
		finalRieulPieup, finalRieulHieut,
		finalJieut, finalTieut, finalPieup, finalHieut:
		return true
	}
	return false
}

func closedSyllable(s syllable) bool {
	return s.final != finalNone
}

// bareEndingStem excludes ㄴ, ㅁ and ㅇ batchim, which mostly end nouns
// ("영어", "언어").
func bareEndingStem(s syllable) bool {
	switch s.final {
	case finalNone, finalNieun, finalMieum, finalIeung:
		return false
	}
	return true
}

// brightVowelStem accepts stems that take 아 by vowel harmony ("좋아").
func brightVowelStem(s syllable) bool {
	if !bareEndingStem(s) || s.final == finalSsangSio {
		return false
	}
	return s.medial == medialA || s.medial == medialYa || s.medial == medialO
}

// darkVowelStem accepts stems that take 어 ("없어") and past stems ("했어").
func darkVowelStem(s syllable) bool {
	if s.final == finalSsangSio {
		return true
	}
	if !bareEndingStem(s) {
		return false
	}
	return s.medial != medialA && s.medial != medialYa && s.medial != medialO
}

func finalOf(r rune) int {
	s, _ := decompose(r)
	return s.final
}
