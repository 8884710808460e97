package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// RawEvent is published to the raw-transactions topic after a transaction
// is persisted and scored.
type RawEvent struct {
	TransactionID  string  `json:"transaction_id"`
	SenderID       string  `json:"sender_id"`
	ReceiverID     string  `json:"receiver_id"`
	AmountZAR      float64 `json:"amount_zar"`
	RiskLevel      string  `json:"risk_level"`
	CompositeScore float64 `json:"composite_score"`
}

// ScoredEvent is published per RiskScore produced.
type ScoredEvent struct {
	TransactionID  string   `json:"transaction_id"`
	CompositeScore float64  `json:"composite_score"`
	RiskLevel      string   `json:"risk_level"`
	TriggeredRules []string `json:"triggered_rules"`
}

// AlertEvent is published per Alert created and re-emitted on analyst
// status changes.
type AlertEvent struct {
	AlertID       string `json:"alert_id"`
	TransactionID string `json:"transaction_id"`
	Severity      string `json:"severity"`
	AlertType     string `json:"alert_type"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Producer is the process-wide fan-out producer. Start and Stop are
// idempotent; Publish is safe for concurrent use. Publish errors are
// logged and counted, never escalated past the caller.
type Producer struct {
	cfg configs.KafkaConfig

	mu       sync.Mutex
	producer sarama.SyncProducer

	sentCount  atomic.Int64
	errorCount atomic.Int64
}

// NewProducer creates an unstarted fan-out producer.
func NewProducer(cfg configs.KafkaConfig) *Producer {
	return &Producer{cfg: cfg}
}

// newSaramaConfig builds the shared producer settings: full-ISR acks and
// gzip compression, matching the durability recommendation for the bus.
func newSaramaConfig(timeout time.Duration) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionGZIP
	config.Producer.Return.Successes = true
	config.Producer.Timeout = timeout
	config.Version = sarama.V2_8_0_0
	return config
}

// Start connects to the brokers. Calling Start on a running producer is a
// no-op.
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.producer != nil {
		return nil
	}

	producer, err := sarama.NewSyncProducer(p.cfg.BootstrapServers, newSaramaConfig(p.cfg.ProduceTimeout))
	if err != nil {
		return fmt.Errorf("starting kafka producer: %w", err)
	}

	p.producer = producer
	log.Info().Strs("brokers", p.cfg.BootstrapServers).Msg("Kafka producer started")
	return nil
}

// Stop closes the producer. Calling Stop on a stopped producer is a no-op.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.producer == nil {
		return nil
	}

	err := p.producer.Close()
	p.producer = nil
	log.Info().Msg("Kafka producer stopped")
	return err
}

// Healthy reports whether the producer is connected.
func (p *Producer) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producer != nil
}

// Counters returns the lifetime sent and error counts.
func (p *Producer) Counters() (sent, errors int64) {
	return p.sentCount.Load(), p.errorCount.Load()
}

// publish JSON-encodes value and sends it keyed by the transaction id. The
// error is returned for the caller's log line and already counted.
func (p *Producer) publish(topic, key string, value interface{}) error {
	p.mu.Lock()
	producer := p.producer
	p.mu.Unlock()

	if producer == nil {
		p.errorCount.Add(1)
		return fmt.Errorf("kafka producer is not started")
	}

	payload, err := json.Marshal(value)
	if err != nil {
		p.errorCount.Add(1)
		return fmt.Errorf("encoding event for topic %s: %w", topic, err)
	}

	_, _, err = producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		p.errorCount.Add(1)
		return fmt.Errorf("sending to topic %s: %w", topic, err)
	}

	p.sentCount.Add(1)
	log.Debug().Str("topic", topic).Str("key", key).Msg("Kafka send")
	return nil
}

// PublishRaw sends the post-ingest event for a scored transaction.
func (p *Producer) PublishRaw(txn *models.Transaction, score *models.RiskScore) error {
	return p.publish(p.cfg.TransactionTopic, txn.ID.String(), RawEvent{
		TransactionID:  txn.ID.String(),
		SenderID:       txn.SenderID,
		ReceiverID:     txn.ReceiverID,
		AmountZAR:      txn.AmountZAR,
		RiskLevel:      score.RiskLevel,
		CompositeScore: score.CompositeScore,
	})
}

// PublishScored sends the verdict event.
func (p *Producer) PublishScored(score *models.RiskScore) error {
	return p.publish(p.cfg.ScoredTopic, score.TransactionID.String(), ScoredEvent{
		TransactionID:  score.TransactionID.String(),
		CompositeScore: score.CompositeScore,
		RiskLevel:      score.RiskLevel,
		TriggeredRules: score.TriggeredRules,
	})
}

// PublishAlert sends an alert event.
func (p *Producer) PublishAlert(alert *models.Alert) error {
	return p.publish(p.cfg.AlertTopic, alert.TransactionID.String(), AlertEvent{
		AlertID:       alert.ID.String(),
		TransactionID: alert.TransactionID.String(),
		Severity:      alert.Severity,
		AlertType:     alert.AlertType,
		Status:        alert.Status,
		Message:       alert.Message,
	})
}
