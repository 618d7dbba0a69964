package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
}

func TestLoadFileNoResampleWhenRatesMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	samples := []int{0, 8192, 16384, -16384, -8192, 0}
	writeWAV(t, path, 16000, 1, samples)

	u, err := LoadFile(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if u.SampleRate != 16000 || u.Source != path {
		t.Fatalf("unexpected utterance meta: %+v", u)
	}
	if len(u.Samples) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(u.Samples))
	}
	for i, s := range samples {
		want := float32(s) / 32768
		if u.Samples[i] != want {
			t.Fatalf("sample %d: got %v, want %v", i, u.Samples[i], want)
		}
	}
}

func TestLoadFileFirstChannelOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Interleaved stereo: left channel ramps, right channel is constant.
	interleaved := []int{100, 9999, 200, 9999, 300, 9999}
	writeWAV(t, path, 16000, 2, interleaved)

	u, err := LoadFile(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(u.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(u.Samples))
	}
	for i, want := range []int{100, 200, 300} {
		if u.Samples[i] != float32(want)/32768 {
			t.Fatalf("sample %d: got %v, want left channel value", i, u.Samples[i])
		}
	}
}

func TestLoadFileResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.wav")
	samples := make([]int, 8000)
	for i := range samples {
		samples[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	writeWAV(t, path, 8000, 1, samples)

	u, err := LoadFile(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(u.Samples) != 16000 {
		t.Fatalf("expected 16000 samples after 8k->16k resample, got %d", len(u.Samples))
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.wav"), 16000)
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestLoadFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-audio.wav")
	if err := os.WriteFile(path, []byte("this is not a wav file"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := LoadFile(path, 16000)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".wav")
		writeWAV(t, paths[i], 16000, 1, make([]int, 100*(i+1)))
	}
	utts, err := Load(paths, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, u := range utts {
		if u.Source != paths[i] {
			t.Fatalf("order broken at %d: %s", i, u.Source)
		}
		if len(u.Samples) != 100*(i+1) {
			t.Fatalf("wrong utterance at %d: %d samples", i, len(u.Samples))
		}
	}
}
