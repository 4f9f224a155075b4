package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartspeech-client/internal/app"
	"smartspeech-client/internal/config"
	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/google"
)

func main() {
	configFile := flag.String("config", "", "Optional YAML config file (env overrides it)")
	audioFile := flag.String("audio", "-", "Path to a WAV or raw PCM file, - for stdin")
	realtime := flag.Bool("realtime", false, "Pace audio at its playback speed")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall call timeout")
	flag.Parse()

	cfg := loadConfig(*configFile)
	a := app.New(cfg)
	log := logging.Logger()
	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start client")
	}
	defer a.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var in io.Reader = os.Stdin
	if *audioFile != "-" {
		f, err := os.Open(*audioFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *audioFile).Msg("failed to open audio file")
		}
		defer f.Close()
		in = f
	}

	var opts app.RecognizeOptions
	opts.Realtime = *realtime
	if cfg.Recognition.Provider == config.ProviderGoogle {
		backend, err := google.New(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Google Speech client")
		}
		defer backend.Close()
		opts.Google = backend
	}

	res, err := a.Recognize(ctx, in, os.Stdout, opts)
	if err != nil {
		log.Error().Err(err).Str("callId", res.CallID).Msg("recognition failed")
		a.Shutdown()
		os.Exit(1)
	}
	log.Info().
		Str("callId", res.CallID).
		Int64("bytes", res.BytesFed).
		Int("transcripts", res.Transcripts).
		Msg("recognition finished")
}

func loadConfig(path string) *config.Configuration {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}
