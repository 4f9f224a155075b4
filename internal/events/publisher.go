// Package events publishes recognition results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"smartspeech-client/internal/models"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/schema"
)

// Publisher publishes transcript events to separate Kafka topics.
//
// Writers run in async mode: a publish only marshals and enqueues, so it can
// be called from a result sink on the dispatcher goroutine. Delivery errors
// are logged and counted when the batch completes.
type Publisher struct {
	writerPartial *kafka.Writer
	writerFinal   *kafka.Writer
	principal     string
	topicPartial  string
	topicFinal    string
	enabled       bool
	metrics       *metrics.Metrics
	validator     *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
	// Metrics defaults to metrics.DefaultMetrics.
	Metrics *metrics.Metrics
	// Validator rejects payloads that do not match the event schema.
	// Nil publishes without validation.
	Validator *schema.Validator
}

// New creates a new Kafka event publisher with separate topics for partial and final transcripts.
func New(cfg *Config) *Publisher {
	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: metrics.DefaultMetrics,
		}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	p := &Publisher{
		principal:    cfg.Principal,
		topicPartial: cfg.TopicPartial,
		topicFinal:   cfg.TopicFinal,
		metrics:      m,
		validator:    cfg.Validator,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerPartial = p.newWriter(cfg.Brokers, cfg.TopicPartial, "partial", transport)
	p.writerFinal = p.newWriter(cfg.Brokers, cfg.TopicFinal, "final", transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func (p *Publisher) newWriter(brokers []string, topic, eventType string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.completion(topic, eventType),
		Transport:    transport,
	}
}

// completion records the outcome of an async batch.
func (p *Publisher) completion(topic, eventType string) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		for _, msg := range messages {
			p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(msg.Time).Seconds())
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Int("messages", len(messages)).
				Msg("Failed to write to Kafka")
		}
	}
}

// PublishPartial publishes a partial transcript event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, "partial", models.EventTypePartial, key, event)
}

// PublishFinal publishes a final transcript event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", models.EventTypeFinal, key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, schemaType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	if err := p.validator.Validate(schemaType, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Event failed schema validation")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  start,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to enqueue Kafka message")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}
	return nil
}

// Close flushes and closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
