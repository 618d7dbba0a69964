package biasing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eliben/go-sentencepiece"

	"github.com/shaynemei/sherpa/internal/config"
	"github.com/shaynemei/sherpa/internal/vocab"
)

// ErrUnknownToken reports a unit that has no vocabulary entry and no
// fallback under the active tokenization scheme.
var ErrUnknownToken = errors.New("token not in vocabulary")

// Segmenter splits a phrase into subword pieces. The production
// implementation wraps a SentencePiece model; tests substitute a fixed one.
type Segmenter interface {
	Pieces(phrase string) []string
}

type spSegmenter struct {
	proc *sentencepiece.Processor
}

// NewSentencePieceSegmenter loads a SentencePiece model from disk.
func NewSentencePieceSegmenter(modelPath string) (Segmenter, error) {
	proc, err := sentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load bpe model %s: %w", modelPath, err)
	}
	return &spSegmenter{proc: proc}, nil
}

func (s *spSegmenter) Pieces(phrase string) []string {
	tokens := s.proc.Encode(phrase)
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		pieces[i] = tok.Text
	}
	return pieces
}

// Tokenizer converts one normalized phrase into vocabulary token ids.
// The variant is chosen once at configuration time.
type Tokenizer interface {
	Tokenize(phrase string) ([]int32, error)
}

// NewTokenizer selects the tokenizer for the given modeling unit. Units
// containing subword pieces require a Segmenter.
func NewTokenizer(unit string, table *vocab.Table, seg Segmenter) (Tokenizer, error) {
	switch unit {
	case config.UnitChar:
		return &charTokenizer{table: table}, nil
	case config.UnitBPE:
		if seg == nil {
			return nil, fmt.Errorf("modeling unit %q requires a subword model", unit)
		}
		return &subwordTokenizer{table: table, seg: seg}, nil
	case config.UnitBPEChar:
		if seg == nil {
			return nil, fmt.Errorf("modeling unit %q requires a subword model", unit)
		}
		return &hybridTokenizer{table: table, seg: seg}, nil
	default:
		return nil, fmt.Errorf("unknown modeling unit %q", unit)
	}
}

type charTokenizer struct {
	table *vocab.Table
}

func (c *charTokenizer) Tokenize(phrase string) ([]int32, error) {
	return charIDs(c.table, phrase)
}

// charIDs maps each rune to its vocabulary id. Spaces absent from the
// vocabulary are dropped rather than failing; any other missing rune is an
// unknown token.
func charIDs(table *vocab.Table, phrase string) ([]int32, error) {
	ids := make([]int32, 0, len(phrase))
	for _, r := range phrase {
		id, ok := table.ID(string(r))
		if !ok {
			if r == ' ' {
				continue
			}
			return nil, fmt.Errorf("character %q in phrase %q: %w", r, phrase, ErrUnknownToken)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type subwordTokenizer struct {
	table *vocab.Table
	seg   Segmenter
}

func (s *subwordTokenizer) Tokenize(phrase string) ([]int32, error) {
	pieces := s.seg.Pieces(phrase)
	ids := make([]int32, 0, len(pieces))
	for _, piece := range pieces {
		id, ok := s.table.ID(piece)
		if !ok {
			return nil, fmt.Errorf("piece %q in phrase %q: %w", piece, phrase, ErrUnknownToken)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// hybridTokenizer tries subword pieces first and falls back to characters
// for pieces absent from the vocabulary. This maximizes biasing coverage
// for phrases mixing scripts.
type hybridTokenizer struct {
	table *vocab.Table
	seg   Segmenter
}

func (h *hybridTokenizer) Tokenize(phrase string) ([]int32, error) {
	pieces := h.seg.Pieces(phrase)
	var ids []int32
	for _, piece := range pieces {
		if id, ok := h.table.ID(piece); ok {
			ids = append(ids, id)
			continue
		}
		// The word-boundary marker has no character-level entry.
		chars, err := charIDs(h.table, strings.ReplaceAll(piece, "▁", ""))
		if err != nil {
			return nil, err
		}
		ids = append(ids, chars...)
	}
	return ids, nil
}
