// Package morph splits Korean text into morphemes with predicates reduced
// to their dictionary form.
package morph

import "context"

// Analyzer tokenizes text into morphemes. Conjugated verbs and adjectives
// come back in dictionary form ("좋네요" -> "좋다").
type Analyzer interface {
	Morphs(ctx context.Context, text string) ([]string, error)
}
