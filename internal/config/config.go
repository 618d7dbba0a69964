package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported decoding methods.
const (
	MethodGreedySearch   = "greedy_search"
	MethodModifiedBeam   = "modified_beam_search"
	MethodFastBeamSearch = "fast_beam_search"
)

// Modeling units accepted for bias-phrase tokenization.
const (
	UnitChar    = "char"
	UnitBPE     = "bpe"
	UnitBPEChar = "bpe+char"
)

// Validation failure categories. Callers match with errors.Is.
var (
	ErrMissingFile        = errors.New("file does not exist")
	ErrUnsupportedMethod  = errors.New("unsupported decoding method")
	ErrIncompatibleOption = errors.New("incompatible option")
	ErrInvalidValue       = errors.New("invalid value")
)

// Args holds the raw recognition parameters exactly as supplied on the
// command line, before validation.
type Args struct {
	NNModel        string
	Tokens         string
	SampleRate     int
	FeatDim        int
	UseBBPE        bool
	DecodingMethod string
	NumActivePaths int
	BPEModel       string
	ModelingUnit   string
	Contexts       string
	ContextScore   float64
	Temperature    float64
	MaxContexts    int
	MaxStates      int
	AllowPartial   bool
	LG             string
	NgramLMScale   float64
	Beam           float64
	UseGPU         bool
	NumThreads     int
	SoundFiles     []string
}

// Validate checks the raw arguments in a fixed order and stops at the first
// violation. It runs before any model or audio resource is opened.
func Validate(args Args) error {
	if !isFile(args.NNModel) {
		return fmt.Errorf("nn-model %q: %w", args.NNModel, ErrMissingFile)
	}
	if !isFile(args.Tokens) {
		return fmt.Errorf("tokens %q: %w", args.Tokens, ErrMissingFile)
	}
	if args.LG != "" && !isFile(args.LG) {
		return fmt.Errorf("LG %q: %w", args.LG, ErrMissingFile)
	}
	if args.BPEModel != "" && !isFile(args.BPEModel) {
		return fmt.Errorf("bpe-model %q: %w", args.BPEModel, ErrMissingFile)
	}

	switch args.DecodingMethod {
	case MethodGreedySearch, MethodModifiedBeam, MethodFastBeamSearch:
	default:
		return fmt.Errorf("%q: %w", args.DecodingMethod, ErrUnsupportedMethod)
	}

	if strings.TrimSpace(args.Contexts) != "" {
		if args.DecodingMethod != MethodModifiedBeam {
			return fmt.Errorf("contextual biasing requires %s, got %q: %w",
				MethodModifiedBeam, args.DecodingMethod, ErrIncompatibleOption)
		}
		if strings.Contains(args.ModelingUnit, "bpe") && !isFile(args.BPEModel) {
			return fmt.Errorf("bpe-model %q: %w", args.BPEModel, ErrMissingFile)
		}
	}

	if args.DecodingMethod == MethodModifiedBeam {
		if args.NumActivePaths <= 0 {
			return fmt.Errorf("num-active-paths %d: %w", args.NumActivePaths, ErrInvalidValue)
		}
		if args.Temperature <= 0 {
			return fmt.Errorf("temperature %v: %w", args.Temperature, ErrInvalidValue)
		}
	}

	if len(args.SoundFiles) == 0 {
		return fmt.Errorf("no sound files given: %w", ErrMissingFile)
	}
	for _, f := range args.SoundFiles {
		if !isFile(f) {
			return fmt.Errorf("sound file %q: %w", f, ErrMissingFile)
		}
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FeatureConfig describes the filterbank extraction block. Dithering is
// always disabled so repeated runs over the same file are bit-identical.
type FeatureConfig struct {
	SampleRate int
	FeatureDim int
	Dither     float64
}

// ModifiedBeamConfig holds parameters for modified_beam_search.
type ModifiedBeamConfig struct {
	NumActivePaths int
	Temperature    float64
	ContextScore   float64
}

// FastBeamConfig holds parameters for fast_beam_search. LG is empty for
// lexicon-free decoding.
type FastBeamConfig struct {
	LG           string
	NgramLMScale float64
	Beam         float64
	MaxContexts  int
	MaxStates    int
	AllowPartial bool
}

// ResourceConfig fixes the compute resources at construction time. These are
// explicit fields, never process-wide globals.
type ResourceConfig struct {
	UseGPU     bool
	NumThreads int
}

// Recognition is the immutable recognizer configuration. Exactly one
// decoding method is active; only its parameter block is populated.
type Recognition struct {
	NNModel string
	Tokens  string
	UseBBPE bool

	Feature   FeatureConfig
	Method    string
	Modified  ModifiedBeamConfig
	FastBeam  FastBeamConfig
	Resources ResourceConfig
}

// Build assembles a Recognition from validated arguments. It performs no I/O.
func Build(args Args) Recognition {
	rec := Recognition{
		NNModel: args.NNModel,
		Tokens:  args.Tokens,
		UseBBPE: args.UseBBPE,
		Feature: FeatureConfig{
			SampleRate: args.SampleRate,
			FeatureDim: args.FeatDim,
			Dither:     0,
		},
		Method: args.DecodingMethod,
		Resources: ResourceConfig{
			UseGPU:     args.UseGPU,
			NumThreads: args.NumThreads,
		},
	}
	switch args.DecodingMethod {
	case MethodModifiedBeam:
		rec.Modified = ModifiedBeamConfig{
			NumActivePaths: args.NumActivePaths,
			Temperature:    args.Temperature,
			ContextScore:   args.ContextScore,
		}
	case MethodFastBeamSearch:
		rec.FastBeam = FastBeamConfig{
			LG:           args.LG,
			NgramLMScale: args.NgramLMScale,
			Beam:         args.Beam,
			MaxContexts:  args.MaxContexts,
			MaxStates:    args.MaxStates,
			AllowPartial: args.AllowPartial,
		}
	}
	return rec
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type EngineConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Config carries the ambient (non-recognition) settings loaded from the
// optional YAML file and SHERPA_* environment overrides.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Engine    EngineConfig    `yaml:"engine"`
	Bus       BusConfig       `yaml:"bus"`
	Store     StoreConfig     `yaml:"store"`
}

func Default() Config {
	return Config{
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Engine: EngineConfig{
			Mode: "mock",
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			Subject:        "asr.transcript.final",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads the ambient config. An empty path yields defaults plus
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validateAmbient(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Telemetry.LogLevel, "SHERPA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SHERPA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SHERPA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SHERPA_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Engine.Mode, "SHERPA_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SHERPA_ENGINE_COMMAND")
	overrideBool(&cfg.Bus.Enabled, "SHERPA_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "SHERPA_BUS_SERVERS")
	overrideString(&cfg.Bus.Subject, "SHERPA_BUS_SUBJECT")
	overrideString(&cfg.Bus.Username, "SHERPA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SHERPA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SHERPA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SHERPA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SHERPA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "SHERPA_STORE_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validateAmbient(cfg Config) error {
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when bus is enabled")
		}
	}
	return nil
}
