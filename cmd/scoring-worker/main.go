package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/events"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/repositories"
	"github.com/obakengshepherd/RiskSentinel/internal/rules"
	"github.com/obakengshepherd/RiskSentinel/internal/scoring"
)

// rawTransactionMessage is the payload consumed from the raw-transactions
// topic. Upstream producers submit transactions here instead of the REST
// ingest; messages re-published by the API server carry a transaction_id
// that already has a verdict and are skipped.
type rawTransactionMessage struct {
	TransactionID     string       `json:"transaction_id"`
	ExternalID        string       `json:"external_id"`
	SenderID          string       `json:"sender_id"`
	ReceiverID        string       `json:"receiver_id"`
	AmountZAR         float64      `json:"amount_zar"`
	Currency          string       `json:"currency"`
	Channel           string       `json:"channel"`
	MerchantCategory  string       `json:"merchant_category"`
	IPAddress         string       `json:"ip_address"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	Geolocation       models.JSONB `json:"geolocation"`
	Metadata          models.JSONB `json:"metadata"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENVIRONMENT") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := configs.Load()

	log.Info().
		Strs("brokers", cfg.Kafka.BootstrapServers).
		Str("topic", cfg.Kafka.TransactionTopic).
		Str("group", cfg.Kafka.ConsumerGroup).
		Msg("Starting RiskSentinel scoring worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	producer := events.NewProducer(cfg.Kafka)
	if err := producer.Start(); err != nil {
		log.Warn().Err(err).Msg("Kafka producer unavailable, scored events will not be re-published")
	}
	defer producer.Stop()

	txRepo := repositories.NewTransactionRepository(db)
	riskScoreRepo := repositories.NewRiskScoreRepository(db)
	ruleRepo := repositories.NewRuleRepository(db)

	engine := scoring.NewEngine(
		ruleRepo,
		rules.NewEngine(),
		scoring.NewVelocityCalculator(txRepo, cfg.Velocity),
		scoring.NewAnomalyCalculator(txRepo, cfg.Anomaly),
		scoring.NewMLScorer(cfg.ML),
		cfg.Risk,
	)

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Version = sarama.V2_8_0_0

	// The brokers may still be booting when the worker starts.
	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.BootstrapServers, cfg.Kafka.ConsumerGroup, saramaCfg)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	handler := &scoreHandler{
		db:         db,
		txRepo:     txRepo,
		riskScores: riskScoreRepo,
		engine:     engine,
		producer:   producer,
		actor:      "worker:" + cfg.Kafka.ConsumerGroup,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping scoring worker...")
		cancel()
	}()

	go handler.startMetricsReporter(ctx)

	topics := []string{cfg.Kafka.TransactionTopic}
	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down scoring worker")
			return
		}
	}
}

// scoreHandler scores transactions arriving on the raw topic.
type scoreHandler struct {
	db         *repositories.Database
	txRepo     *repositories.TransactionRepository
	riskScores *repositories.RiskScoreRepository
	engine     *scoring.Engine
	producer   *events.Producer
	actor      string

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func (h *scoreHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Scoring worker session started")
	return nil
}

func (h *scoreHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Scoring worker session ended")
	return nil
}

func (h *scoreHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *scoreHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var msg rawTransactionMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		log.Error().Err(err).Int64("offset", message.Offset).Msg("Failed to parse raw transaction message")
		h.failed.Add(1)
		return
	}

	txn, isNew, err := h.resolveTransaction(ctx, &msg)
	if err != nil {
		log.Error().Err(err).Str("external_id", msg.ExternalID).Msg("Failed to resolve transaction")
		h.failed.Add(1)
		return
	}
	if txn == nil {
		h.skipped.Add(1)
		return
	}

	var (
		score *models.RiskScore
		alert *models.Alert
	)

	err = h.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := repositories.NewTxStore(tx)

		if isNew {
			if err := store.Transactions.Create(ctx, txn); err != nil {
				return err
			}
			if err := store.CreateAuditLog(ctx, &models.AuditLog{
				TransactionID: &txn.ID,
				Actor:         h.actor,
				Action:        models.AuditActionTransactionCreated,
				Details: models.JSONB{
					"channel":    txn.Channel,
					"amount_zar": txn.AmountZAR,
				},
			}); err != nil {
				return err
			}
		}

		var err error
		score, alert, err = h.engine.ScoreTransaction(ctx, store, txn)
		return err
	})

	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateTransaction) {
			h.skipped.Add(1)
			return
		}
		log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("Scoring failed")
		h.failed.Add(1)
		return
	}

	if err := h.producer.PublishScored(score); err != nil {
		log.Warn().Err(err).Str("transaction_id", txn.ID.String()).Msg("Kafka scored publish failed")
	}
	if alert != nil {
		if err := h.producer.PublishAlert(alert); err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("Kafka alert publish failed")
		}
	}

	h.processed.Add(1)
}

// resolveTransaction loads an existing row or builds a new one from the
// message. Returns nil when the transaction already has a verdict.
func (h *scoreHandler) resolveTransaction(ctx context.Context, msg *rawTransactionMessage) (*models.Transaction, bool, error) {
	var (
		txn *models.Transaction
		err error
	)

	switch {
	case msg.TransactionID != "":
		id, parseErr := uuid.Parse(msg.TransactionID)
		if parseErr != nil {
			return nil, false, parseErr
		}
		txn, err = h.txRepo.GetByID(ctx, id)
	case msg.ExternalID != "":
		txn, err = h.txRepo.GetByExternalID(ctx, msg.ExternalID)
	}

	if err != nil && !errors.Is(err, repositories.ErrTransactionNotFound) {
		return nil, false, err
	}

	if txn != nil {
		_, scoreErr := h.riskScores.GetByTransactionID(ctx, txn.ID)
		if scoreErr == nil {
			return nil, false, nil
		}
		if !errors.Is(scoreErr, repositories.ErrRiskScoreNotFound) {
			return nil, false, scoreErr
		}
		return txn, false, nil
	}

	return &models.Transaction{
		ExternalID:        msg.ExternalID,
		SenderID:          msg.SenderID,
		ReceiverID:        msg.ReceiverID,
		AmountZAR:         msg.AmountZAR,
		Currency:          msg.Currency,
		Channel:           msg.Channel,
		MerchantCategory:  msg.MerchantCategory,
		IPAddress:         msg.IPAddress,
		DeviceFingerprint: msg.DeviceFingerprint,
		Geolocation:       msg.Geolocation,
		Metadata:          msg.Metadata,
	}, true, nil
}

func (h *scoreHandler) startMetricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info().
				Int64("processed", h.processed.Load()).
				Int64("skipped", h.skipped.Load()).
				Int64("failed", h.failed.Load()).
				Msg("Scoring worker metrics")

		case <-ctx.Done():
			return
		}
	}
}
