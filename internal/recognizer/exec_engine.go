package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/shaynemei/sherpa/internal/config"
)

// execEngine drives an external inference runner process. The runner is
// probed once with --check at construction; each batch is a single
// invocation with a JSON request on stdin and a JSON response on stdout.
// Utterances travel as temp WAV files named in the request.
type execEngine struct {
	cmd []string
	rec config.Recognition
	log *slog.Logger
}

type runnerFeature struct {
	SampleRate int     `json:"sample_rate"`
	FeatureDim int     `json:"feature_dim"`
	Dither     float64 `json:"dither"`
}

type runnerDecoding struct {
	Method         string  `json:"method"`
	NumActivePaths int     `json:"num_active_paths,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ContextScore   float64 `json:"context_score,omitempty"`
	LG             string  `json:"lg,omitempty"`
	NgramLMScale   float64 `json:"ngram_lm_scale,omitempty"`
	Beam           float64 `json:"beam,omitempty"`
	MaxContexts    int     `json:"max_contexts,omitempty"`
	MaxStates      int     `json:"max_states,omitempty"`
	AllowPartial   bool    `json:"allow_partial,omitempty"`
}

type runnerResources struct {
	UseGPU     bool `json:"use_gpu"`
	NumThreads int  `json:"num_threads"`
}

type runnerStream struct {
	Audio      string    `json:"audio"`
	ContextIDs [][]int32 `json:"context_ids,omitempty"`
}

type runnerRequest struct {
	Model     string          `json:"model"`
	Tokens    string          `json:"tokens"`
	UseBBPE   bool            `json:"use_bbpe"`
	Feature   runnerFeature   `json:"feature"`
	Decoding  runnerDecoding  `json:"decoding"`
	Resources runnerResources `json:"resources"`
	Streams   []runnerStream  `json:"streams"`
}

type runnerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type runnerResponse struct {
	Results []struct {
		Text       string    `json:"text"`
		Tokens     []string  `json:"tokens"`
		Timestamps []float64 `json:"timestamps"`
	} `json:"results"`
	Error *runnerError `json:"error"`
}

type checkResponse struct {
	OK           bool         `json:"ok"`
	GPUAvailable bool         `json:"gpu_available"`
	Error        *runnerError `json:"error"`
}

// NewExecEngine parses the runner command and probes it so that model-load
// and GPU failures surface at construction time.
func NewExecEngine(command string, rec config.Recognition, log *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse runner command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("runner command is empty")
	}
	e := &execEngine{cmd: args, rec: rec, log: log}
	if err := e.check(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *execEngine) check() error {
	args := append(append([]string{}, e.cmd[1:]...), "--check", "--nn-model", e.rec.NNModel)
	command := exec.Command(e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return fmt.Errorf("%w: runner check: %v: %s", ErrModelLoad, err, stderr.String())
	}
	var resp checkResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return fmt.Errorf("%w: decode runner check response: %v", ErrModelLoad, err)
	}
	if resp.Error != nil {
		return runnerErr(resp.Error)
	}
	if !resp.OK {
		return fmt.Errorf("%w: runner reported not ok", ErrModelLoad)
	}
	if e.rec.Resources.UseGPU && !resp.GPUAvailable {
		return fmt.Errorf("%w: runner reports no usable device", ErrGPUUnavailable)
	}
	return nil
}

func (e *execEngine) DecodeBatch(ctx context.Context, entries []BatchEntry) ([]BatchResult, error) {
	req := runnerRequest{
		Model:   e.rec.NNModel,
		Tokens:  e.rec.Tokens,
		UseBBPE: e.rec.UseBBPE,
		Feature: runnerFeature{
			SampleRate: e.rec.Feature.SampleRate,
			FeatureDim: e.rec.Feature.FeatureDim,
			Dither:     e.rec.Feature.Dither,
		},
		Decoding:  e.decoding(),
		Resources: runnerResources(e.rec.Resources),
	}

	for _, entry := range entries {
		file, err := os.CreateTemp("", "sherpa_batch_*.wav")
		if err != nil {
			return nil, fmt.Errorf("%w: temp file: %v", ErrDecodeFailed, err)
		}
		defer os.Remove(file.Name())
		if err := writeWAV(file, entry.Samples, entry.SampleRate); err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		req.Streams = append(req.Streams, runnerStream{
			Audio:      file.Name(),
			ContextIDs: entry.ContextIDs,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrDecodeFailed, err)
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%w: runner: %v: %s", ErrDecodeFailed, err, stderr.String())
	}

	var resp runnerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("%w: decode runner response: %v", ErrDecodeFailed, err)
	}
	if resp.Error != nil {
		return nil, runnerErr(resp.Error)
	}
	if len(resp.Results) != len(entries) {
		return nil, fmt.Errorf("%w: runner returned %d results for %d streams",
			ErrDecodeFailed, len(resp.Results), len(entries))
	}

	results := make([]BatchResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = BatchResult{Text: r.Text, Tokens: r.Tokens, Timestamps: r.Timestamps}
	}
	return results, nil
}

func (e *execEngine) decoding() runnerDecoding {
	d := runnerDecoding{Method: e.rec.Method}
	switch e.rec.Method {
	case config.MethodModifiedBeam:
		d.NumActivePaths = e.rec.Modified.NumActivePaths
		d.Temperature = e.rec.Modified.Temperature
		d.ContextScore = e.rec.Modified.ContextScore
	case config.MethodFastBeamSearch:
		d.LG = e.rec.FastBeam.LG
		d.NgramLMScale = e.rec.FastBeam.NgramLMScale
		d.Beam = e.rec.FastBeam.Beam
		d.MaxContexts = e.rec.FastBeam.MaxContexts
		d.MaxStates = e.rec.FastBeam.MaxStates
		d.AllowPartial = e.rec.FastBeam.AllowPartial
	}
	return d
}

func (e *execEngine) Close() error {
	return nil
}

func runnerErr(re *runnerError) error {
	switch re.Code {
	case "model_load":
		return fmt.Errorf("%w: %s", ErrModelLoad, re.Message)
	case "gpu_unavailable":
		return fmt.Errorf("%w: %s", ErrGPUUnavailable, re.Message)
	default:
		return fmt.Errorf("%w: %s: %s", ErrDecodeFailed, re.Code, re.Message)
	}
}

func writeWAV(file *os.File, samples []float32, sampleRate int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		v := int(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = v
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
