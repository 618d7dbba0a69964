// Package audio reads input waveforms and normalizes them to the sample
// rate the model was trained on.
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

var (
	ErrFileNotFound      = errors.New("audio file not found")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Utterance is an immutable mono waveform read from one source file.
type Utterance struct {
	Source     string
	SampleRate int
	Samples    []float32
}

// Load reads every path into an Utterance at the expected sample rate,
// preserving input order.
func Load(paths []string, expectedRate int) ([]Utterance, error) {
	utts := make([]Utterance, 0, len(paths))
	for _, path := range paths {
		u, err := LoadFile(path, expectedRate)
		if err != nil {
			return nil, err
		}
		utts = append(utts, u)
	}
	return utts, nil
}

// LoadFile reads one WAV file, keeps the first channel of multi-channel
// input, and resamples when the native rate differs from expectedRate.
func LoadFile(path string, expectedRate int) (Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Utterance{}, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return Utterance{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Utterance{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Utterance{}, fmt.Errorf("%s: decode: %w", path, ErrUnsupportedFormat)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Utterance{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	// First channel only. Selection, not averaging.
	channels := buf.Format.NumChannels
	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/scale)
	}

	nativeRate := buf.Format.SampleRate
	if nativeRate != expectedRate {
		samples = Resample(samples, nativeRate, expectedRate)
	}

	return Utterance{
		Source:     path,
		SampleRate: expectedRate,
		Samples:    samples,
	}, nil
}
