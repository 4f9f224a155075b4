// Package config loads client configuration from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"smartspeech-client/internal/session"
	"smartspeech-client/internal/smartspeech"
)

// Recognition providers.
const (
	ProviderSmartSpeech = "smartspeech"
	ProviderGoogle      = "google"
)

var (
	// ErrMissingAddress is returned when no server address is configured.
	ErrMissingAddress = errors.New("SMARTSPEECH_ADDRESS is required")
	// ErrMissingToken is returned for a secure connection without token.
	ErrMissingToken = errors.New("SMARTSPEECH_TOKEN is required unless SMARTSPEECH_INSECURE is set")
	// ErrInvalid wraps every other validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Configuration is the full client configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig describes the SmartSpeech endpoint.
type ServiceConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	RootCAFile string `yaml:"rootCaFile"`
	Insecure   bool   `yaml:"insecure"`
}

// RecognitionConfig holds streaming recognition settings.
type RecognitionConfig struct {
	Provider         string        `yaml:"provider"`
	AudioEncoding    string        `yaml:"audioEncoding"`
	SampleRate       int           `yaml:"sampleRate"`
	Model            string        `yaml:"model"`
	HypothesesCount  int           `yaml:"hypothesesCount"`
	PartialResults   bool          `yaml:"partialResults"`
	MultiUtterance   bool          `yaml:"multiUtterance"`
	ProfanityFilter  bool          `yaml:"profanityFilter"`
	NoSpeechTimeout  time.Duration `yaml:"noSpeechTimeout"`
	MaxSpeechTimeout time.Duration `yaml:"maxSpeechTimeout"`
	HintWords        []string      `yaml:"hintWords"`
	// LanguageCode is used by the Google provider only.
	LanguageCode string        `yaml:"languageCode"`
	ChunkSize    int           `yaml:"chunkSize"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// SynthesisConfig holds synthesis defaults.
type SynthesisConfig struct {
	Language      string `yaml:"language"`
	Voice         string `yaml:"voice"`
	ContentType   string `yaml:"contentType"`
	AudioEncoding string `yaml:"audioEncoding"`
}

// KafkaConfig holds transcript event publishing settings.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topicPartial"`
	TopicFinal   string   `yaml:"topicFinal"`
	Principal    string   `yaml:"principal"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Address: "smartspeech.sber.ru:443",
		},
		Recognition: RecognitionConfig{
			Provider:         ProviderSmartSpeech,
			AudioEncoding:    "pcm16le",
			SampleRate:       8000,
			Model:            "general",
			HypothesesCount:  1,
			PartialResults:   true,
			NoSpeechTimeout:  7 * time.Second,
			MaxSpeechTimeout: 20 * time.Second,
			LanguageCode:     "ru-RU",
			ChunkSize:        1600,
			PollInterval:     100 * time.Millisecond,
		},
		Synthesis: SynthesisConfig{
			Language:      "ru-RU",
			Voice:         "May_24000",
			ContentType:   "text",
			AudioEncoding: "wav",
		},
		Kafka: KafkaConfig{
			TopicPartial: "speech.transcript.partial",
			TopicFinal:   "speech.transcript.final",
			Principal:    "smartspeech-client",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads the configuration from environment variables.
func Load() *Configuration {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies environment
// overrides.
func LoadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Configuration) applyEnv() {
	c.Service.Address = envOrDefault("SMARTSPEECH_ADDRESS", c.Service.Address)
	c.Service.Token = envOrDefault("SMARTSPEECH_TOKEN", c.Service.Token)
	c.Service.RootCAFile = envOrDefault("SMARTSPEECH_ROOT_CA", c.Service.RootCAFile)
	c.Service.Insecure = envOrDefaultBool("SMARTSPEECH_INSECURE", c.Service.Insecure)

	r := &c.Recognition
	r.Provider = envOrDefault("RECOGNITION_PROVIDER", r.Provider)
	r.AudioEncoding = envOrDefault("RECOGNITION_AUDIO_ENCODING", r.AudioEncoding)
	r.SampleRate = envOrDefaultInt("RECOGNITION_SAMPLE_RATE", r.SampleRate)
	r.Model = envOrDefault("RECOGNITION_MODEL", r.Model)
	r.HypothesesCount = envOrDefaultInt("RECOGNITION_HYPOTHESES_COUNT", r.HypothesesCount)
	r.PartialResults = envOrDefaultBool("RECOGNITION_PARTIAL_RESULTS", r.PartialResults)
	r.MultiUtterance = envOrDefaultBool("RECOGNITION_MULTI_UTTERANCE", r.MultiUtterance)
	r.ProfanityFilter = envOrDefaultBool("RECOGNITION_PROFANITY_FILTER", r.ProfanityFilter)
	r.NoSpeechTimeout = envOrDefaultDuration("RECOGNITION_NO_SPEECH_TIMEOUT", r.NoSpeechTimeout)
	r.MaxSpeechTimeout = envOrDefaultDuration("RECOGNITION_MAX_SPEECH_TIMEOUT", r.MaxSpeechTimeout)
	r.HintWords = envOrDefaultList("RECOGNITION_HINT_WORDS", r.HintWords)
	r.LanguageCode = envOrDefault("RECOGNITION_LANGUAGE_CODE", r.LanguageCode)
	r.ChunkSize = envOrDefaultInt("RECOGNITION_CHUNK_SIZE", r.ChunkSize)
	r.PollInterval = envOrDefaultDuration("RECOGNITION_POLL_INTERVAL", r.PollInterval)

	s := &c.Synthesis
	s.Language = envOrDefault("SYNTHESIS_LANGUAGE", s.Language)
	s.Voice = envOrDefault("SYNTHESIS_VOICE", s.Voice)
	s.ContentType = envOrDefault("SYNTHESIS_CONTENT_TYPE", s.ContentType)
	s.AudioEncoding = envOrDefault("SYNTHESIS_AUDIO_ENCODING", s.AudioEncoding)

	k := &c.Kafka
	k.Enabled = envOrDefaultBool("KAFKA_ENABLED", k.Enabled)
	k.Brokers = envOrDefaultList("KAFKA_BROKERS", k.Brokers)
	k.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", k.TopicPartial)
	k.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", k.TopicFinal)
	k.Principal = envOrDefault("KAFKA_PRINCIPAL", k.Principal)

	o := &c.Observability
	o.LogLevel = envOrDefault("LOG_LEVEL", o.LogLevel)
	o.LogFormat = envOrDefault("LOG_FORMAT", o.LogFormat)
	o.MetricsAddr = envOrDefault("METRICS_ADDR", o.MetricsAddr)
}

// Validate checks what every command needs.
func (c *Configuration) Validate() error {
	if c.Service.Address == "" {
		return ErrMissingAddress
	}
	if !c.Service.Insecure && c.Service.Token == "" {
		return ErrMissingToken
	}
	switch c.Recognition.Provider {
	case ProviderSmartSpeech, ProviderGoogle:
	default:
		return fmt.Errorf("%w: unknown recognition provider %q", ErrInvalid, c.Recognition.Provider)
	}
	if c.Recognition.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalid)
	}
	if c.Recognition.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalid)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: KAFKA_BROKERS is required when Kafka is enabled", ErrInvalid)
	}
	return nil
}

// SessionConfig builds the session configuration, reading the root
// certificate file when one is set.
func (c ServiceConfig) SessionConfig() (session.Config, error) {
	cfg := session.Config{
		Address:     c.Address,
		AccessToken: c.Token,
		Insecure:    c.Insecure,
	}
	if c.RootCAFile != "" {
		pem, err := os.ReadFile(c.RootCAFile)
		if err != nil {
			return session.Config{}, fmt.Errorf("read root certificate: %w", err)
		}
		cfg.RootCertificate = pem
	}
	return cfg, nil
}

// Options converts the recognition settings.
func (c RecognitionConfig) Options() (smartspeech.RecognitionOptions, error) {
	enc, err := smartspeech.ParseEncoding(c.AudioEncoding)
	if err != nil {
		return smartspeech.RecognitionOptions{}, err
	}
	opts := smartspeech.RecognitionOptions{
		AudioEncoding:         enc,
		SampleRate:            c.SampleRate,
		Model:                 c.Model,
		HypothesesCount:       c.HypothesesCount,
		EnablePartialResults:  c.PartialResults,
		EnableMultiUtterance:  c.MultiUtterance,
		EnableProfanityFilter: c.ProfanityFilter,
		NoSpeechTimeout:       c.NoSpeechTimeout,
		MaxSpeechTimeout:      c.MaxSpeechTimeout,
		Hints:                 smartspeech.Hints{Words: c.HintWords},
	}
	return opts, opts.Validate()
}

// Options converts the synthesis settings for text.
func (c SynthesisConfig) Options(text string) (smartspeech.SynthesisOptions, error) {
	enc, err := smartspeech.ParseSynthesisEncoding(c.AudioEncoding)
	if err != nil {
		return smartspeech.SynthesisOptions{}, err
	}
	ct, err := smartspeech.ParseContentType(c.ContentType)
	if err != nil {
		return smartspeech.SynthesisOptions{}, err
	}
	opts := smartspeech.SynthesisOptions{
		Text:          text,
		Language:      c.Language,
		Voice:         c.Voice,
		ContentType:   ct,
		AudioEncoding: enc,
	}
	return opts, opts.Validate()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
