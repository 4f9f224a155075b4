package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smartspeech-client/internal/app"
	"smartspeech-client/internal/config"
	"smartspeech-client/internal/observability/logging"
)

func main() {
	configFile := flag.String("config", "", "Optional YAML config file (env overrides it)")
	text := flag.String("text", "", "Text to synthesize; read from stdin when empty")
	output := flag.String("out", "-", "Output audio file, - for stdout")
	voice := flag.String("voice", "", "Voice override")
	timeout := flag.Duration("timeout", time.Minute, "Call timeout")
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *voice != "" {
		cfg.Synthesis.Voice = *voice
	}

	input := *text
	if input == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger := logging.Logger()
			logger.Fatal().Err(err).Msg("failed to read text")
		}
		input = strings.TrimSpace(string(b))
	}

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

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal().Err(err).Str("file", *output).Msg("failed to create output file")
		}
		defer f.Close()
		out = f
	}

	if _, err := a.Synthesize(ctx, input, out); err != nil {
		log.Error().Err(err).Msg("synthesis failed")
		a.Shutdown()
		os.Exit(1)
	}
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
