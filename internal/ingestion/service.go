package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/cache"
	"github.com/obakengshepherd/RiskSentinel/internal/events"
	"github.com/obakengshepherd/RiskSentinel/internal/httpapi"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/repositories"
	"github.com/obakengshepherd/RiskSentinel/internal/scoring"
)

// TransactionRequest is the ingest payload.
type TransactionRequest struct {
	ExternalID        string       `json:"external_id"`
	SenderID          string       `json:"sender_id" binding:"required"`
	ReceiverID        string       `json:"receiver_id" binding:"required"`
	AmountZAR         float64      `json:"amount_zar"`
	Currency          string       `json:"currency"`
	Channel           string       `json:"channel" binding:"required"`
	MerchantCategory  string       `json:"merchant_category"`
	IPAddress         string       `json:"ip_address"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	Geolocation       models.JSONB `json:"geolocation"`
	Metadata          models.JSONB `json:"metadata"`
}

// Validate applies the bounds the schema cannot express.
func (r *TransactionRequest) Validate(cfg configs.AmountConfig) error {
	if r.AmountZAR < cfg.MinZAR || r.AmountZAR > cfg.MaxZAR {
		return httpapi.Validation(fmt.Sprintf("amount_zar must be between %.2f and %.2f", cfg.MinZAR, cfg.MaxZAR))
	}

	if !models.ValidChannels[r.Channel] {
		return httpapi.Validation("channel must be one of: api, mobile_banking, pos, ussd")
	}

	if r.Currency != "" && len(r.Currency) != 3 {
		return httpapi.Validation("currency must be a 3-character code")
	}

	if r.Geolocation != nil {
		lat, latOK := toNumber(r.Geolocation["lat"])
		lng, lngOK := toNumber(r.Geolocation["lng"])
		if !latOK || !lngOK {
			return httpapi.Validation("geolocation must carry numeric lat and lng")
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return httpapi.Validation("geolocation lat/lng out of range")
		}
	}

	return nil
}

func toNumber(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// Service runs the ingest-and-score pipeline and the transaction reads.
type Service struct {
	db           *repositories.Database
	transactions *repositories.TransactionRepository
	riskScores   *repositories.RiskScoreRepository
	alerts       *repositories.AlertRepository
	audit        *repositories.AuditRepository
	engine       *scoring.Engine
	producer     *events.Producer
	cache        *cache.Client
	amountCfg    configs.AmountConfig
}

// NewService wires the ingestion service. cache may be nil when Redis is
// not deployed.
func NewService(
	db *repositories.Database,
	transactions *repositories.TransactionRepository,
	riskScores *repositories.RiskScoreRepository,
	alerts *repositories.AlertRepository,
	audit *repositories.AuditRepository,
	engine *scoring.Engine,
	producer *events.Producer,
	cacheClient *cache.Client,
	amountCfg configs.AmountConfig,
) *Service {
	return &Service{
		db:           db,
		transactions: transactions,
		riskScores:   riskScores,
		alerts:       alerts,
		audit:        audit,
		engine:       engine,
		producer:     producer,
		cache:        cacheClient,
		amountCfg:    amountCfg,
	}
}

// Submit persists and scores a transaction in one transactional unit:
// staging insert, creation audit, then the scoring pipeline's writes. On a
// scoring failure the unit rolls back and the row is re-committed as
// declined so it survives for audit. Fan-out happens after commit and never
// affects the response.
func (s *Service) Submit(ctx context.Context, req *TransactionRequest, actor string) (*models.Transaction, *models.RiskScore, error) {
	if err := req.Validate(s.amountCfg); err != nil {
		return nil, nil, err
	}

	txn := &models.Transaction{
		ExternalID:        req.ExternalID,
		SenderID:          req.SenderID,
		ReceiverID:        req.ReceiverID,
		AmountZAR:         req.AmountZAR,
		Currency:          req.Currency,
		Channel:           req.Channel,
		MerchantCategory:  req.MerchantCategory,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
		Geolocation:       req.Geolocation,
		Metadata:          req.Metadata,
	}

	var (
		score    *models.RiskScore
		alert    *models.Alert
		inserted bool
	)

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := repositories.NewTxStore(tx)

		if err := store.Transactions.Create(ctx, txn); err != nil {
			return err
		}
		inserted = true

		if err := store.CreateAuditLog(ctx, &models.AuditLog{
			TransactionID: &txn.ID,
			Actor:         actor,
			Action:        models.AuditActionTransactionCreated,
			Details: models.JSONB{
				"channel":    txn.Channel,
				"amount_zar": txn.AmountZAR,
			},
		}); err != nil {
			return err
		}

		var err error
		score, alert, err = s.engine.ScoreTransaction(ctx, store, txn)
		return err
	})

	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateTransaction) {
			return nil, nil, httpapi.Conflict("transaction with this external_id already exists")
		}
		if !inserted {
			return nil, nil, httpapi.Database("failed to persist transaction", err)
		}

		log.Error().
			Err(err).
			Str("transaction_id", txn.ID.String()).
			Msg("Scoring pipeline failed, marking transaction declined")
		s.markDeclined(ctx, txn, actor)
		return nil, nil, httpapi.Scoring("failed to score transaction", err)
	}

	s.afterCommit(txn, score, alert)
	return txn, score, nil
}

// markDeclined re-commits the transaction row with status declined after the
// scoring unit rolled back. Best effort; runs even when the caller's
// deadline has expired.
func (s *Service) markDeclined(ctx context.Context, txn *models.Transaction, actor string) {
	declineCtx := context.WithoutCancel(ctx)
	txn.Status = models.TransactionStatusDeclined

	err := s.db.WithTransaction(declineCtx, func(tx pgx.Tx) error {
		store := repositories.NewTxStore(tx)

		if err := store.Transactions.Create(declineCtx, txn); err != nil {
			return err
		}

		return store.CreateAuditLog(declineCtx, &models.AuditLog{
			TransactionID: &txn.ID,
			Actor:         actor,
			Action:        models.AuditActionTransactionCreated,
			Details: models.JSONB{
				"channel":    txn.Channel,
				"amount_zar": txn.AmountZAR,
				"note":       "scoring failed, transaction declined",
			},
		})
	})

	if err != nil {
		log.Error().
			Err(err).
			Str("transaction_id", txn.ID.String()).
			Msg("Failed to record declined transaction")
	}
}

// afterCommit caches the verdict and fans out events off the request path.
func (s *Service) afterCommit(txn *models.Transaction, score *models.RiskScore, alert *models.Alert) {
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, cache.RiskScoreKey(txn.ID.String()), score); err != nil {
			log.Warn().Err(err).Str("transaction_id", txn.ID.String()).Msg("Risk score cache write failed")
		}
		// The new verdict shifts the dashboard KPIs.
		if err := s.cache.Delete(cacheCtx, cache.DashboardSummaryKey); err != nil {
			log.Warn().Err(err).Msg("Dashboard summary cache invalidation failed")
		}
	}

	go func() {
		if err := s.producer.PublishRaw(txn, score); err != nil {
			log.Warn().Err(err).Str("transaction_id", txn.ID.String()).Msg("Kafka raw publish failed")
		}
		if err := s.producer.PublishScored(score); err != nil {
			log.Warn().Err(err).Str("transaction_id", txn.ID.String()).Msg("Kafka scored publish failed")
		}
		if alert != nil {
			if err := s.producer.PublishAlert(alert); err != nil {
				log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("Kafka alert publish failed")
			}
		}
	}()
}

// Get assembles the detail bundle: transaction, verdict, alerts, and audit
// trail. The verdict is served from cache when possible.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.TransactionBundle, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, httpapi.NotFound("transaction not found")
		}
		return nil, httpapi.Database("failed to load transaction", err)
	}

	bundle := &models.TransactionBundle{
		Transaction: txn,
		Alerts:      []*models.Alert{},
		AuditLogs:   []*models.AuditLog{},
	}

	score := &models.RiskScore{}
	cached := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, cache.RiskScoreKey(id.String()), score); err == nil {
			bundle.RiskScore = score
			cached = true
		}
	}
	if !cached {
		score, err = s.riskScores.GetByTransactionID(ctx, id)
		switch {
		case err == nil:
			bundle.RiskScore = score
		case errors.Is(err, repositories.ErrRiskScoreNotFound):
			// Declined transactions have no verdict.
		default:
			return nil, httpapi.Database("failed to load risk score", err)
		}
	}

	alerts, err := s.alerts.GetByTransactionID(ctx, id)
	if err != nil {
		return nil, httpapi.Database("failed to load alerts", err)
	}
	if alerts != nil {
		bundle.Alerts = alerts
	}

	auditLogs, err := s.audit.GetByTransactionID(ctx, id)
	if err != nil {
		return nil, httpapi.Database("failed to load audit trail", err)
	}
	if auditLogs != nil {
		bundle.AuditLogs = auditLogs
	}

	return bundle, nil
}

// List returns transactions newest first with optional filters.
func (s *Service) List(ctx context.Context, page, pageSize int, statusFilter, senderID string) ([]*models.Transaction, int, error) {
	transactions, total, err := s.transactions.List(ctx, page, pageSize, statusFilter, senderID)
	if err != nil {
		return nil, 0, httpapi.Database("failed to list transactions", err)
	}
	return transactions, total, nil
}
