package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"crowdsale-ledger/internal/domain"
)

const (
	// StreamName is the JetStream stream holding committed sale events.
	StreamName = "CROWDSALE_EVENTS"

	// SubjectPrefix prefixes every event subject.
	SubjectPrefix = "crowdsale.events"

	// StreamRetention is how long events are retained.
	StreamRetention = 30 * 24 * time.Hour

	// DuplicateWindow is the window in which JetStream drops a republished
	// event with the same ID.
	DuplicateWindow = 2 * time.Minute
)

// Subject returns the subject of e: crowdsale.events.<sale>.<kind>.
func Subject(e *domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Sale, e.Kind)
}

// JetStreamPublisher publishes committed events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewJetStreamPublisher connects to natsURL and ensures the stream exists.
func NewJetStreamPublisher(ctx context.Context, natsURL string, logger *zap.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	nc, err := nats.Connect(natsURL,
		nats.Name("crowdsale-ledger"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, logger: logger}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	logger.Info("NATS publisher initialized", zap.String("url", natsURL), zap.String("stream", StreamName))
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed crowdsale transitions",
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  DuplicateWindow,
	})
	return err
}

// Publish implements Sink. The event ID is the JetStream message ID.
func (p *JetStreamPublisher) Publish(ctx context.Context, e *domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(e)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("published event", zap.String("subject", subject), zap.String("event_id", e.ID))
	return nil
}

// JetStream exposes the JetStream context for consumers.
func (p *JetStreamPublisher) JetStream() jetstream.JetStream {
	return p.js
}

// Close drains the connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.logger.Info("NATS publisher closed")
	return err
}
