package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendafacil/movements-service/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SyncedEvent announces that a movements delta was fetched from B3 and
// persisted for a document and market type.
type SyncedEvent struct {
	Document   string    `json:"document"`
	MarketType string    `json:"market_type"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Fetched    int       `json:"fetched"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Producer publishes sync events to Kafka. A nil Producer is a no-op, so
// callers need no enabled checks.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a Kafka producer for sync events, or nil when event
// publishing is disabled.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Transport: &kafka.Transport{
				ClientID: cfg.ClientID,
			},
		},
		logger: logger,
	}
}

// PublishSynced sends one sync event, keyed by document so a consumer sees
// per-investor events in order. Best effort: failures are logged, never
// surfaced to the sync caller.
func (p *Producer) PublishSynced(ctx context.Context, event SyncedEvent) {
	if p == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal sync event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.Document),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish sync event",
			zap.String("document", event.Document),
			zap.String("market_type", event.MarketType),
			zap.Error(err))
		return
	}
	p.logger.Debug("Published sync event",
		zap.String("document", event.Document),
		zap.String("market_type", event.MarketType),
		zap.Int("fetched", event.Fetched))
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
