// Command sherpa-offline transcribes one or more audio files with a
// pretrained transducer model, without starting a server and a client.
// Transcripts are printed to stdout, one "<filename>\n<transcript>" block
// per input file, in input order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/shaynemei/sherpa/internal/audio"
	"github.com/shaynemei/sherpa/internal/biasing"
	"github.com/shaynemei/sherpa/internal/bus"
	"github.com/shaynemei/sherpa/internal/config"
	"github.com/shaynemei/sherpa/internal/recognizer"
	"github.com/shaynemei/sherpa/internal/store"
	"github.com/shaynemei/sherpa/internal/telemetry"
	"github.com/shaynemei/sherpa/internal/vocab"
)

var version = "0.1.0-dev"

func main() {
	var (
		args        config.Args
		configPath  string
		showVersion bool
	)

	flag.StringVar(&args.NNModel, "nn-model", "", "Path to the transducer model")
	flag.StringVar(&args.Tokens, "tokens", "", "Path to tokens.txt")
	flag.IntVar(&args.SampleRate, "sample-rate", 16000, "Sample rate the model was trained on; inputs are resampled to it")
	flag.IntVar(&args.FeatDim, "feat-dim", 80, "Feature dimension of the model")
	flag.BoolVar(&args.UseBBPE, "use-bbpe", false, "Whether the model was trained with bbpe")
	flag.StringVar(&args.DecodingMethod, "decoding-method", "", "Decoding method: greedy_search, modified_beam_search or fast_beam_search")
	flag.IntVar(&args.NumActivePaths, "num-active-paths", 4, "Active paths kept during modified_beam_search")
	flag.StringVar(&args.BPEModel, "bpe-model", "", "Path to bpe.model for tokenizing bias phrases")
	flag.StringVar(&args.ModelingUnit, "modeling-unit", config.UnitChar, "Unit for bias-phrase tokenization: char, bpe or bpe+char")
	flag.StringVar(&args.Contexts, "contexts", "", "Bias phrases separated by /, e.g. 'HELLO WORLD/GO AWAY'")
	flag.Float64Var(&args.ContextScore, "context-score", 1.5, "Per-token score for biased phrases")
	flag.Float64Var(&args.Temperature, "temperature", 1.0, "Softmax temperature for modified_beam_search")
	flag.IntVar(&args.MaxContexts, "max-contexts", 8, "Max contexts for fast_beam_search")
	flag.IntVar(&args.MaxStates, "max-states", 64, "Max states for fast_beam_search")
	flag.BoolVar(&args.AllowPartial, "allow-partial", true, "Allow partial results in fast_beam_search")
	flag.StringVar(&args.LG, "LG", "", "Optional LG for fast_beam_search")
	flag.Float64Var(&args.NgramLMScale, "ngram-lm-scale", 0.01, "LM interpolation scale when LG is given")
	flag.Float64Var(&args.Beam, "beam", 4, "Beam for fast_beam_search")
	flag.BoolVar(&args.UseGPU, "use-gpu", false, "Run inference on the GPU (device 0)")
	flag.IntVar(&args.NumThreads, "num-threads", 1, "CPU compute threads for the engine")
	flag.StringVar(&configPath, "config", "", "Optional path to the ambient YAML configuration")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()
	args.SoundFiles = flag.Args()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Telemetry.LogLevel)

	if err := run(cfg, args, logger); err != nil {
		logger.Error("decode failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout carries transcripts only.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg config.Config, args config.Args, logger *slog.Logger) error {
	if err := config.Validate(args); err != nil {
		return err
	}
	rec := config.Build(args)

	shutdownTelemetry, err := telemetry.Setup(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	table, err := vocab.Load(rec.Tokens)
	if err != nil {
		return err
	}
	logger.Info("loaded token table", slog.Int("entries", table.Len()))

	var phrases *biasing.PhraseSet
	if strings.TrimSpace(args.Contexts) != "" {
		var seg biasing.Segmenter
		if strings.Contains(args.ModelingUnit, "bpe") {
			seg, err = biasing.NewSentencePieceSegmenter(args.BPEModel)
			if err != nil {
				return err
			}
		}
		enc, err := biasing.NewEncoder(args.ModelingUnit, table, seg, args.ContextScore)
		if err != nil {
			return err
		}
		phrases, err = enc.Encode(args.Contexts)
		if err != nil {
			return err
		}
		if phrases != nil {
			for _, p := range phrases.Phrases {
				logger.Info("bias phrase", slog.String("text", p.Text), slog.Int("tokens", len(p.IDs)))
			}
		}
	}

	utts, err := audio.Load(args.SoundFiles, rec.Feature.SampleRate)
	if err != nil {
		return err
	}

	engine, err := recognizer.NewEngine(cfg.Engine, rec, logger)
	if err != nil {
		return err
	}
	rcg := recognizer.New(rec, table, engine, logger)
	defer func() {
		if err := rcg.Close(); err != nil {
			logger.Warn("engine close error", slog.String("error", err.Error()))
		}
	}()

	streams := make([]*recognizer.Stream, len(utts))
	for i, u := range utts {
		s := rcg.NewStream(phrases)
		if err := s.AcceptWaveform(u); err != nil {
			return err
		}
		streams[i] = s
	}

	ctx := context.Background()
	tracer := otel.Tracer("sherpa-offline")
	meter := otel.Meter("sherpa-offline")
	decoded, _ := meter.Int64Counter("utterances_decoded_total",
		metric.WithDescription("Utterances decoded successfully"))
	failures, _ := meter.Int64Counter("batch_decode_failures_total",
		metric.WithDescription("Failed batch decodes"))

	ctx, span := tracer.Start(ctx, "decode_batch")
	span.SetAttributes(
		attribute.String("decoding.method", rec.Method),
		attribute.Int("batch.size", len(streams)),
	)
	started := time.Now()
	err = rcg.DecodeBatch(ctx, streams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		failures.Add(ctx, 1)
		return err
	}
	span.End()
	decoded.Add(ctx, int64(len(streams)))
	logger.Info("batch decoded",
		slog.Int("streams", len(streams)),
		slog.Duration("elapsed", time.Since(started)))

	results := make([]store.Transcript, len(streams))
	for i, s := range streams {
		res, ok := s.Result()
		if !ok {
			return fmt.Errorf("stream %d has no result", i)
		}
		fmt.Printf("%s\n%s\n", args.SoundFiles[i], res.Text)
		results[i] = store.Transcript{Source: args.SoundFiles[i], Text: res.Text}
	}

	// Result history and bus publishing are best-effort: the transcripts
	// above are already out.
	if cfg.Store.Path != "" {
		if err := recordRun(ctx, cfg.Store.Path, rec, results, logger); err != nil {
			logger.Warn("failed to record run", slog.String("error", err.Error()))
		}
	}
	if cfg.Bus.Enabled {
		publishResults(cfg.Bus, rec, results, logger)
	}
	return nil
}

func recordRun(ctx context.Context, path string, rec config.Recognition, results []store.Transcript, logger *slog.Logger) error {
	st, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()
	runID, err := st.RecordRun(ctx, rec.NNModel, rec.Method, results)
	if err != nil {
		return err
	}
	logger.Info("run recorded", slog.Int64("run_id", runID), slog.String("path", path))
	return nil
}

func publishResults(cfg config.BusConfig, rec config.Recognition, results []store.Transcript, logger *slog.Logger) {
	client, err := bus.Connect(cfg, logger)
	if err != nil {
		logger.Warn("failed to connect to bus", slog.String("error", err.Error()))
		return
	}
	defer client.Close()
	for _, r := range results {
		err := client.PublishTranscript(bus.Transcript{
			Source: r.Source,
			Text:   r.Text,
			Method: rec.Method,
		})
		if err != nil {
			logger.Warn("failed to publish transcript",
				slog.String("source", r.Source), slog.String("error", err.Error()))
		}
	}
}
