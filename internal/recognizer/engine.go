package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaynemei/sherpa/internal/config"
)

// Recognizer failure categories. Callers match with errors.Is.
var (
	ErrModelLoad      = errors.New("model load failed")
	ErrGPUUnavailable = errors.New("gpu unavailable")
	ErrDecodeFailed   = errors.New("batch decode failed")
)

// BatchEntry is one utterance submitted for decoding, paired with its
// optional bias-phrase token ids.
type BatchEntry struct {
	Samples      []float32
	SampleRate   int
	ContextIDs   [][]int32
	ContextScore float64
}

// BatchResult is the decode output for one entry.
type BatchResult struct {
	Text       string
	Tokens     []string
	Timestamps []float64
}

// Engine runs batched feature extraction, the network forward pass and the
// search kernel behind a narrow interface, so the orchestration layer stays
// decoupled from any single inference runtime. Implementations must return
// exactly one result per entry, aligned to entry order.
type Engine interface {
	DecodeBatch(ctx context.Context, entries []BatchEntry) ([]BatchResult, error)
	Close() error
}

// NewEngine builds the engine selected by the ambient config. Model-load
// and GPU failures surface here, before any stream exists.
func NewEngine(cfg config.EngineConfig, rec config.Recognition, log *slog.Logger) (Engine, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg.Command, rec, log)
	default:
		return nil, fmt.Errorf("unknown engine mode %q (supported: mock, exec)", cfg.Mode)
	}
}
