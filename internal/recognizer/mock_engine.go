package recognizer

import (
	"context"
	"fmt"
)

type mockEngine struct{}

// NewMockEngine returns a deterministic engine for tests and dry runs.
func NewMockEngine() Engine {
	return &mockEngine{}
}

func (m *mockEngine) DecodeBatch(_ context.Context, entries []BatchEntry) ([]BatchResult, error) {
	results := make([]BatchResult, len(entries))
	for i, e := range entries {
		results[i] = BatchResult{
			Text: fmt.Sprintf("[mock transcript: %d samples, %d contexts]", len(e.Samples), len(e.ContextIDs)),
		}
	}
	return results, nil
}

func (m *mockEngine) Close() error {
	return nil
}
