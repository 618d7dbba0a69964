// Package biasing tokenizes contextual-biasing phrases into vocabulary
// token-id sequences.
package biasing

import (
	"strings"

	"github.com/shaynemei/sherpa/internal/vocab"
)

// Phrase is one bias phrase with its encoded token ids.
type Phrase struct {
	Text string
	IDs  []int32
}

// PhraseSet is the ordered collection of bias phrases for one run, sharing
// a single per-token bias score.
type PhraseSet struct {
	Phrases []Phrase
	Score   float64
}

// IDs returns the token-id sequences in phrase order.
func (p *PhraseSet) IDs() [][]int32 {
	out := make([][]int32, len(p.Phrases))
	for i, ph := range p.Phrases {
		out[i] = ph.IDs
	}
	return out
}

// SplitPhrases normalizes a raw contexts string: split on "/", trim, drop
// empty entries, upper-case. Biasing is case-insensitive.
func SplitPhrases(raw string) []string {
	var phrases []string
	for _, part := range strings.Split(raw, "/") {
		if s := strings.TrimSpace(part); s != "" {
			phrases = append(phrases, strings.ToUpper(s))
		}
	}
	return phrases
}

// Encoder turns raw contexts strings into PhraseSets with a tokenizer
// chosen once at construction.
type Encoder struct {
	tok   Tokenizer
	score float64
}

// NewEncoder builds an encoder for the given modeling unit.
func NewEncoder(unit string, table *vocab.Table, seg Segmenter, score float64) (*Encoder, error) {
	tok, err := NewTokenizer(unit, table, seg)
	if err != nil {
		return nil, err
	}
	return &Encoder{tok: tok, score: score}, nil
}

// Encode tokenizes every phrase in the raw contexts string. It returns nil
// when the string contains no phrases. Encoding is deterministic: the same
// input always yields the same id sequences.
func (e *Encoder) Encode(raw string) (*PhraseSet, error) {
	phrases := SplitPhrases(raw)
	if len(phrases) == 0 {
		return nil, nil
	}
	set := &PhraseSet{Score: e.score}
	for _, text := range phrases {
		ids, err := e.tok.Tokenize(text)
		if err != nil {
			return nil, err
		}
		set.Phrases = append(set.Phrases, Phrase{Text: text, IDs: ids})
	}
	return set, nil
}
