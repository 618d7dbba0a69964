// Package recognizer owns the decode orchestration: stream lifecycle,
// batched submission to the inference engine, and ordered result
// collection.
package recognizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaynemei/sherpa/internal/audio"
	"github.com/shaynemei/sherpa/internal/biasing"
	"github.com/shaynemei/sherpa/internal/config"
	"github.com/shaynemei/sherpa/internal/vocab"
)

// Recognizer is the process-wide, read-only decode front end. It is built
// once and shared by every stream for the process lifetime.
type Recognizer struct {
	cfg    config.Recognition
	table  *vocab.Table
	engine Engine
	log    *slog.Logger
}

// New wires a recognizer to an already-constructed engine.
func New(cfg config.Recognition, table *vocab.Table, engine Engine, log *slog.Logger) *Recognizer {
	return &Recognizer{cfg: cfg, table: table, engine: engine, log: log}
}

// Close releases the underlying engine.
func (r *Recognizer) Close() error {
	return r.engine.Close()
}

// Result is the final transcript attached to a stream after a successful
// batch decode.
type Result struct {
	Text       string
	Tokens     []string
	Timestamps []float64
}

type streamState int

const (
	streamCreated streamState = iota
	streamBound
	streamDecoded
)

// Stream is a per-utterance decode session. Streams are independent aside
// from sharing the read-only recognizer, and are owned by a single caller
// for one batch's lifetime.
type Stream struct {
	contexts *biasing.PhraseSet
	utt      audio.Utterance
	state    streamState
	result   Result
}

// NewStream creates a stream, optionally carrying bias phrases.
func (r *Recognizer) NewStream(contexts *biasing.PhraseSet) *Stream {
	return &Stream{contexts: contexts}
}

// AcceptWaveform binds exactly one utterance to the stream. It must be
// called exactly once before the stream is decoded.
func (s *Stream) AcceptWaveform(u audio.Utterance) error {
	if s.state != streamCreated {
		return fmt.Errorf("stream already has a waveform (%s)", s.utt.Source)
	}
	s.utt = u
	s.state = streamBound
	return nil
}

// Result returns the transcript once the stream has been decoded.
func (s *Stream) Result() (Result, bool) {
	if s.state != streamDecoded {
		return Result{}, false
	}
	return s.result, true
}

// DecodeBatch submits all streams as one batch and fills each stream's
// result in place. The call blocks until the engine finishes; a failure
// aborts the whole batch and no stream receives a result. Result order
// strictly equals submission order: result i belongs to streams[i]
// regardless of any reordering or padding the engine performs internally.
func (r *Recognizer) DecodeBatch(ctx context.Context, streams []*Stream) error {
	if len(streams) == 0 {
		return fmt.Errorf("%w: empty batch", ErrDecodeFailed)
	}

	entries := make([]BatchEntry, len(streams))
	for i, s := range streams {
		switch s.state {
		case streamCreated:
			return fmt.Errorf("%w: stream %d has no waveform", ErrDecodeFailed, i)
		case streamDecoded:
			return fmt.Errorf("%w: stream %d already decoded", ErrDecodeFailed, i)
		}
		entries[i] = BatchEntry{
			Samples:    s.utt.Samples,
			SampleRate: s.utt.SampleRate,
		}
		if s.contexts != nil {
			entries[i].ContextIDs = s.contexts.IDs()
			entries[i].ContextScore = s.contexts.Score
		}
	}

	r.log.Info("decoding batch",
		slog.Int("streams", len(streams)),
		slog.String("method", r.cfg.Method))

	results, err := r.engine.DecodeBatch(ctx, entries)
	if err != nil {
		return err
	}
	if len(results) != len(streams) {
		return fmt.Errorf("%w: engine returned %d results for %d streams",
			ErrDecodeFailed, len(results), len(streams))
	}

	for i, s := range streams {
		s.result = Result(results[i])
		s.state = streamDecoded
	}
	return nil
}
