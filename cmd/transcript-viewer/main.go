// Command transcript-viewer consumes the transcript topics and shows the
// events live in a browser over a WebSocket.
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"smartspeech-client/internal/config"
	"smartspeech-client/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) {
	log := hub.log.With().Str("topic", topic).Logger()

	// Partition reader without a consumer group; every viewer sees every event.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Msg("failed to rewind reader, starting from the last offset")
	}
	log.Info().Dur("since", since).Msg("consuming transcripts")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("kafka read failed")
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping undecodable event")
			continue
		}

		log.Debug().
			Str("utteranceId", event.UtteranceID).
			Str("text", truncate(event.Text, 40)).
			Bool("final", event.Final).
			Msg("event received")
		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

func router(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	staticFS, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(staticFS)))
	r.Get("/ws", wsHandler(hub))
	return r
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: cfg.Observability.LogFormat})
	log := logging.WithComponent("transcript-viewer")
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(log)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           router(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.run(gctx.Done())
		return nil
	})
	for _, topic := range []string{cfg.Kafka.TopicPartial, cfg.Kafka.TopicFinal} {
		g.Go(func() error {
			consumeKafka(gctx, hub, cfg.Kafka.Brokers, topic, *since)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().
			Str("addr", *addr).
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topicPartial", cfg.Kafka.TopicPartial).
			Str("topicFinal", cfg.Kafka.TopicFinal).
			Msg("transcript viewer starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
