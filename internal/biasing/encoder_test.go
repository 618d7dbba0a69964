package biasing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/shaynemei/sherpa/internal/config"
	"github.com/shaynemei/sherpa/internal/vocab"
)

// fakeSegmenter splits on a fixed table of phrase -> pieces.
type fakeSegmenter struct {
	pieces map[string][]string
}

func (f *fakeSegmenter) Pieces(phrase string) []string {
	if p, ok := f.pieces[phrase]; ok {
		return p
	}
	return strings.Fields(phrase)
}

func charTable(t *testing.T, tokens ...string) *vocab.Table {
	t.Helper()
	var sb strings.Builder
	for i, tok := range tokens {
		fmt.Fprintf(&sb, "%s %d\n", tok, i)
	}
	path := filepath.Join(t.TempDir(), "tokens.txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	table, err := vocab.Load(path)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	return table
}

func TestSplitPhrases(t *testing.T) {
	got := SplitPhrases("HELLO WORLD/I LOVE YOU/GO AWAY")
	want := []string{"HELLO WORLD", "I LOVE YOU", "GO AWAY"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitPhrasesNormalizes(t *testing.T) {
	got := SplitPhrases(" hello / /world /")
	want := []string{"HELLO", "WORLD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if SplitPhrases("  /  / ") != nil {
		t.Fatal("expected nil for all-empty input")
	}
}

func TestCharEncoding(t *testing.T) {
	table := charTable(t, "H", "E", "L", "O", "W", "R", "D", "G", "A", "Y", "I", "V", "U", " ")
	enc, err := NewEncoder(config.UnitChar, table, nil, 1.5)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	set, err := enc.Encode("HELLO WORLD/I LOVE YOU/GO AWAY")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(set.Phrases) != 3 {
		t.Fatalf("expected 3 phrases, got %d", len(set.Phrases))
	}
	if set.Phrases[0].Text != "HELLO WORLD" || set.Phrases[2].Text != "GO AWAY" {
		t.Fatalf("unexpected phrase order: %+v", set.Phrases)
	}
	// One id per character, space included since it is in the vocabulary.
	if len(set.Phrases[0].IDs) != len("HELLO WORLD") {
		t.Fatalf("expected %d ids, got %d", len("HELLO WORLD"), len(set.Phrases[0].IDs))
	}
	if set.Score != 1.5 {
		t.Fatalf("unexpected score %v", set.Score)
	}
}

func TestCharEncodingSkipsAbsentSpace(t *testing.T) {
	table := charTable(t, "G", "O", "A", "W", "Y")
	enc, err := NewEncoder(config.UnitChar, table, nil, 1.5)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	set, err := enc.Encode("GO AWAY")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(set.Phrases[0].IDs) != 6 {
		t.Fatalf("expected 6 ids without space, got %d", len(set.Phrases[0].IDs))
	}
}

func TestCharEncodingUnknownRune(t *testing.T) {
	table := charTable(t, "A", "B")
	enc, _ := NewEncoder(config.UnitChar, table, nil, 1.5)
	if _, err := enc.Encode("ABC"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestSubwordEncoding(t *testing.T) {
	table := charTable(t, "▁HE", "LLO", "▁WOR", "LD")
	seg := &fakeSegmenter{pieces: map[string][]string{
		"HELLO WORLD": {"▁HE", "LLO", "▁WOR", "LD"},
	}}
	enc, err := NewEncoder(config.UnitBPE, table, seg, 1.5)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	set, err := enc.Encode("HELLO WORLD")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int32{0, 1, 2, 3}
	if !reflect.DeepEqual(set.Phrases[0].IDs, want) {
		t.Fatalf("got %v, want %v", set.Phrases[0].IDs, want)
	}
}

func TestSubwordEncodingUnknownPiece(t *testing.T) {
	table := charTable(t, "▁HE")
	seg := &fakeSegmenter{pieces: map[string][]string{"HELLO": {"▁HE", "LLO"}}}
	enc, _ := NewEncoder(config.UnitBPE, table, seg, 1.5)
	if _, err := enc.Encode("HELLO"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestHybridFallsBackToChars(t *testing.T) {
	// "LLO" is missing as a piece but present character by character.
	table := charTable(t, "▁HE", "L", "O")
	seg := &fakeSegmenter{pieces: map[string][]string{"HELLO": {"▁HE", "LLO"}}}
	enc, err := NewEncoder(config.UnitBPEChar, table, seg, 1.5)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	set, err := enc.Encode("HELLO")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int32{0, 1, 1, 2} // ▁HE, L, L, O
	if !reflect.DeepEqual(set.Phrases[0].IDs, want) {
		t.Fatalf("got %v, want %v", set.Phrases[0].IDs, want)
	}
}

func TestHybridUnknownEverywhere(t *testing.T) {
	table := charTable(t, "▁HE")
	seg := &fakeSegmenter{pieces: map[string][]string{"HELLO": {"▁HE", "LLO"}}}
	enc, _ := NewEncoder(config.UnitBPEChar, table, seg, 1.5)
	if _, err := enc.Encode("HELLO"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestEncodeIdempotent(t *testing.T) {
	table := charTable(t, "G", "O", "A", "W", "Y", " ")
	enc, _ := NewEncoder(config.UnitChar, table, nil, 1.5)
	first, err := enc.Encode("GO AWAY/GO")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := enc.Encode("GO AWAY/GO")
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if !reflect.DeepEqual(first.IDs(), again.IDs()) {
			t.Fatalf("encoding not idempotent: %v vs %v", first.IDs(), again.IDs())
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	table := charTable(t, "A")
	enc, _ := NewEncoder(config.UnitChar, table, nil, 1.5)
	set, err := enc.Encode("")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if set != nil {
		t.Fatalf("expected nil set, got %+v", set)
	}
}

func TestNewTokenizerRejectsUnknownUnit(t *testing.T) {
	table := charTable(t, "A")
	if _, err := NewTokenizer("word", table, nil); err == nil {
		t.Fatal("expected error for unknown modeling unit")
	}
	if _, err := NewTokenizer(config.UnitBPE, table, nil); err == nil {
		t.Fatal("expected error for bpe unit without segmenter")
	}
}
