package recognizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/shaynemei/sherpa/internal/config"
)

func writeRunner(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell runner scripts are not portable to windows")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write runner: %v", err)
	}
	return path
}

const okRunner = `#!/bin/sh
if [ "$1" = "--check" ] || [ "$2" = "--check" ]; then
  echo '{"ok":true,"gpu_available":false}'
  exit 0
fi
cat > /dev/null
echo '{"results":[{"text":"hello world"}]}'
`

func TestExecEngineDecode(t *testing.T) {
	runner := writeRunner(t, okRunner)
	rec := config.Recognition{Method: config.MethodGreedySearch}
	eng, err := NewExecEngine(runner, rec, newLogger())
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	results, err := eng.DecodeBatch(context.Background(), []BatchEntry{
		{Samples: make([]float32, 1600), SampleRate: 16000},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].Text != "hello world" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestExecEngineGPUUnavailable(t *testing.T) {
	runner := writeRunner(t, okRunner)
	rec := config.Recognition{
		Method:    config.MethodGreedySearch,
		Resources: config.ResourceConfig{UseGPU: true},
	}
	_, err := NewExecEngine(runner, rec, newLogger())
	if !errors.Is(err, ErrGPUUnavailable) {
		t.Fatalf("expected ErrGPUUnavailable, got %v", err)
	}
}

func TestExecEngineCheckFailure(t *testing.T) {
	runner := writeRunner(t, "#!/bin/sh\nexit 3\n")
	_, err := NewExecEngine(runner, config.Recognition{}, newLogger())
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestExecEngineErrorCodeMapping(t *testing.T) {
	script := `#!/bin/sh
if [ "$1" = "--check" ] || [ "$2" = "--check" ]; then
  echo '{"ok":true,"gpu_available":true}'
  exit 0
fi
cat > /dev/null
echo '{"error":{"code":"decode","message":"joiner blew up"}}'
`
	runner := writeRunner(t, script)
	eng, err := NewExecEngine(runner, config.Recognition{}, newLogger())
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	_, err = eng.DecodeBatch(context.Background(), []BatchEntry{{Samples: make([]float32, 10), SampleRate: 16000}})
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
}

func TestExecEngineResultCountMismatch(t *testing.T) {
	runner := writeRunner(t, okRunner)
	eng, err := NewExecEngine(runner, config.Recognition{}, newLogger())
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	// Runner always answers with one result; send two streams.
	_, err = eng.DecodeBatch(context.Background(), []BatchEntry{
		{Samples: make([]float32, 10), SampleRate: 16000},
		{Samples: make([]float32, 20), SampleRate: 16000},
	})
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
}

func TestExecEngineEmptyCommand(t *testing.T) {
	if _, err := NewExecEngine("", config.Recognition{}, newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}
