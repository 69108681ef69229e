package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultFilters is the character set the fitted tokenizer replaces with the
// split string before splitting.
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Vocabulary maps tokens to the integer ids the model was trained on. It
// reads the JSON a fitted tokenizer exports and never changes afterwards.
type Vocabulary struct {
	index    map[string]int
	numWords int
	oovIndex int
	lower    bool
	filters  string
	split    string
}

type tokenizerFile struct {
	ClassName string          `json:"class_name"`
	Config    tokenizerConfig `json:"config"`
}

type tokenizerConfig struct {
	NumWords  *int            `json:"num_words"`
	Filters   *string         `json:"filters"`
	Lower     *bool           `json:"lower"`
	Split     *string         `json:"split"`
	CharLevel bool            `json:"char_level"`
	OOVToken  *string         `json:"oov_token"`
	WordIndex json.RawMessage `json:"word_index"`
}

// NewVocabulary builds a vocabulary from a word index. numWords <= 0 keeps
// every word; an empty oovToken drops unknown words.
func NewVocabulary(wordIndex map[string]int, numWords int, oovToken string) *Vocabulary {
	v := &Vocabulary{
		index:    make(map[string]int, len(wordIndex)),
		numWords: numWords,
		lower:    true,
		filters:  DefaultFilters,
		split:    " ",
	}
	for word, id := range wordIndex {
		v.index[word] = id
	}
	if oovToken != "" {
		v.oovIndex = v.index[oovToken]
	}
	return v
}

// LoadVocabulary reads a tokenizer JSON file from disk.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return ParseVocabulary(bytes.NewReader(data))
}

// ParseVocabulary decodes tokenizer JSON. word_index may be an object or a
// JSON-encoded string holding one.
func ParseVocabulary(r io.Reader) (*Vocabulary, error) {
	var file tokenizerFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	cfg := file.Config
	if cfg.CharLevel {
		return nil, errors.New("character level tokenizers are not supported")
	}

	wordIndex, err := decodeWordIndex(cfg.WordIndex)
	if err != nil {
		return nil, err
	}
	if len(wordIndex) == 0 {
		return nil, errors.New("tokenizer has an empty word_index")
	}

	numWords := 0
	if cfg.NumWords != nil {
		numWords = *cfg.NumWords
	}
	oov := ""
	if cfg.OOVToken != nil {
		oov = *cfg.OOVToken
	}

	v := NewVocabulary(wordIndex, numWords, oov)
	if cfg.Lower != nil {
		v.lower = *cfg.Lower
	}
	if cfg.Filters != nil {
		v.filters = *cfg.Filters
	}
	if cfg.Split != nil {
		if *cfg.Split == "" {
			return nil, errors.New("tokenizer split string is empty")
		}
		v.split = *cfg.Split
	}
	return v, nil
}

func decodeWordIndex(raw json.RawMessage) (map[string]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("tokenizer has no word_index")
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode word_index: %w", err)
		}
		raw = []byte(encoded)
	}

	var index map[string]int
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("decode word_index: %w", err)
	}
	return index, nil
}

// Size returns the number of indexed words.
func (v *Vocabulary) Size() int {
	return len(v.index)
}

// Sequence converts tokens to ids. Tokens are joined with spaces and split
// again the way the tokenizer splits text, so filter characters and case
// folding apply. Words outside the vocabulary, or ranked at or beyond
// numWords, map to the OOV id when one exists and are dropped otherwise.
func (v *Vocabulary) Sequence(tokens []string) []int {
	words := v.words(strings.Join(tokens, " "))

	seq := make([]int, 0, len(words))
	for _, w := range words {
		id, ok := v.index[w]
		switch {
		case ok && (v.numWords <= 0 || id < v.numWords):
			seq = append(seq, id)
		case v.oovIndex > 0:
			seq = append(seq, v.oovIndex)
		}
	}
	return seq
}

func (v *Vocabulary) words(text string) []string {
	if v.lower {
		text = strings.ToLower(text)
	}
	for _, c := range v.filters {
		text = strings.ReplaceAll(text, string(c), v.split)
	}

	parts := strings.Split(text, v.split)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
