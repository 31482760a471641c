package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration // Window for duplicate detection
	FlushTimeout    time.Duration // How long Close waits for pending acks

	// Sessions publish from their own loop, so a backpressured broker may
	// stall a publish for at most StallWait before the event is dropped.
	MaxPending int           // In-flight publishes before PublishAsync stalls
	StallWait  time.Duration // Longest a single publish may stall
	AckTimeout time.Duration // How long an in-flight publish waits for its ack
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "BUZZER_EVENTS",
		SubjectPrefix:   "buzzer.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		FlushTimeout:    5 * time.Second,
		MaxPending:      256,
		StallWait:       10 * time.Millisecond,
		AckTimeout:      5 * time.Second,
	}
}

func (c JetStreamConfig) validate() error {
	var errs []error
	if c.StreamName == "" || c.SubjectPrefix == "" {
		errs = append(errs, errors.New("stream name and subject prefix are required"))
	}
	if c.MaxPending <= 0 {
		errs = append(errs, errors.New("max pending must be positive"))
	}
	if c.StallWait <= 0 || c.StallWait > time.Second {
		errs = append(errs, errors.New("stall wait must be between 0 and 1s"))
	}
	if c.AckTimeout <= 0 {
		errs = append(errs, errors.New("ack timeout must be positive"))
	}
	return errors.Join(errs...)
}

// JetStreamPublisher publishes lifecycle events to a JetStream stream without
// waiting for acknowledgements.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid JetStream config: %w", err)
	}

	opts := []nats.Option{
		nats.Name("buzzer"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPending),
		jetstream.WithPublishAsyncTimeout(cfg.AckTimeout),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("JetStream publish not acknowledged")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Buzzer session lifecycle events",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  p.config.DuplicateWindow,
	}

	if _, err := p.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().
		Str("stream", p.config.StreamName).
		Msg("JetStream stream ready")
	return nil
}

// Publish hands the event to the async publisher. The event id doubles as the
// JetStream message id so broker-side dedup applies.
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(p.config.SubjectPrefix, event)
	_, err = p.js.PublishAsync(subject, data,
		jetstream.WithMsgID(event.ID),
		jetstream.WithStallWait(p.config.StallWait),
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close waits for in-flight publishes (bounded by FlushTimeout) and closes the connection
func (p *JetStreamPublisher) Close() error {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(p.config.FlushTimeout):
		log.Warn().Int("pending", p.js.PublishAsyncPending()).Msg("timed out waiting for JetStream acks")
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Subject returns <prefix>.<session id>.<event type>
func Subject(prefix string, event Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.SessionID, event.Type)
}
