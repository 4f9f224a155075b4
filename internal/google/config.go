package google

import (
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"smartspeech-client/internal/smartspeech"
)

// Config holds Google Speech-to-Text streaming configuration.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string // LINEAR16, MULAW, FLAC, OGG_OPUS...
	Model           string // empty selects the service default
	MaxAlternatives int32
	ProfanityFilter bool
	Phrases         []string
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// FromRecognitionOptions maps SmartSpeech recognition options onto the
// closest Google settings. Model names do not carry over.
func FromRecognitionOptions(opts smartspeech.RecognitionOptions, languageCode string) Config {
	cfg := DefaultConfig()
	if languageCode != "" {
		cfg.LanguageCode = languageCode
	}
	cfg.SampleRateHz = int32(opts.SampleRate)
	cfg.InterimResults = opts.EnablePartialResults
	cfg.MaxAlternatives = int32(opts.HypothesesCount)
	cfg.ProfanityFilter = opts.EnableProfanityFilter
	cfg.Phrases = opts.Hints.Words
	if opts.AudioEncoding == smartspeech.EncodingOpus {
		cfg.AudioEncoding = "OGG_OPUS"
	}
	return cfg
}

// parseAudioEncoding converts a string to the Google Speech audio encoding.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// streamingConfig builds the first request of a StreamingRecognize stream.
func (c Config) streamingConfig() *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:        parseAudioEncoding(c.AudioEncoding),
		SampleRateHertz: c.SampleRateHz,
		LanguageCode:    c.LanguageCode,
		MaxAlternatives: c.MaxAlternatives,
		ProfanityFilter: c.ProfanityFilter,
		Model:           c.Model,
	}
	if len(c.Phrases) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{Phrases: c.Phrases}}
	}

	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: c.InterimResults,
	}
}
