package morph

const (
	syllableBase  = 0xAC00
	syllableLast  = 0xD7A3
	medialCount   = 21
	finalCount    = 28
	initialStride = medialCount * finalCount

	initialIeung = 11 // ㅇ
	initialHieut = 18 // ㅎ

	finalNone        = 0
	finalNieun       = 4  // ㄴ
	finalNieunJieut  = 5  // ㄵ
	finalNieunHieut  = 6  // ㄶ
	finalRieul       = 8  // ㄹ
	finalRieulGiyeok = 9  // ㄺ
	finalRieulMieum  = 10 // ㄻ
	finalRieulBieup  = 11 // ㄼ
	finalRieulSiot   = 12 // ㄽ
	finalRieulTieut  = 13 // ㄾ
	finalRieulPieup  = 14 // ㄿ
	finalRieulHieut  = 15 // ㅀ
	finalMieum       = 16 // ㅁ
	finalBieup       = 17 // ㅂ
	finalSsangSio    = 20 // ㅆ
	finalIeung       = 21 // ㅇ
	finalJieut       = 22 // ㅈ
	finalTieut       = 25 // ㅌ
	finalPieup       = 26 // ㅍ
	finalHieut       = 27 // ㅎ

	medialA   = 0  // ㅏ
	medialAe  = 1  // ㅐ
	medialYa  = 2  // ㅑ
	medialEo  = 4  // ㅓ
	medialYeo = 6  // ㅕ
	medialO   = 8  // ㅗ
	medialWa  = 9  // ㅘ
	medialWae = 10 // ㅙ
	medialOe  = 11 // ㅚ
	medialU   = 13 // ㅜ
	medialWo  = 14 // ㅝ
	medialI   = 20 // ㅣ
)

type syllable struct {
	initial, medial, final int
}

func isSyllable(r rune) bool {
	return r >= syllableBase && r <= syllableLast
}

func decompose(r rune) (syllable, bool) {
	if !isSyllable(r) {
		return syllable{}, false
	}
	idx := int(r - syllableBase)
	return syllable{
		initial: idx / initialStride,
		medial:  (idx % initialStride) / finalCount,
		final:   idx % finalCount,
	}, true
}

func (s syllable) rune() rune {
	return rune(syllableBase + s.initial*initialStride + s.medial*finalCount + s.final)
}

func hasFinal(r rune) bool {
	s, ok := decompose(r)
	return ok && s.final != finalNone
}
