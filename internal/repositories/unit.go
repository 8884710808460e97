package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// TxStore bundles the repositories bound to one open transaction so the
// scoring pipeline's writes commit or roll back as a unit.
type TxStore struct {
	Transactions *TransactionRepository
	RiskScores   *RiskScoreRepository
	Alerts       *AlertRepository
	Audit        *AuditRepository
}

// NewTxStore binds all write-side repositories to tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{
		Transactions: &TransactionRepository{q: tx},
		RiskScores:   &RiskScoreRepository{q: tx},
		Alerts:       &AlertRepository{q: tx},
		Audit:        &AuditRepository{q: tx},
	}
}

// CreateRiskScore implements scoring.VerdictStore.
func (s *TxStore) CreateRiskScore(ctx context.Context, score *models.RiskScore) error {
	return s.RiskScores.Create(ctx, score)
}

// CreateAlert implements scoring.VerdictStore.
func (s *TxStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return s.Alerts.Create(ctx, alert)
}

// CreateAuditLog implements scoring.VerdictStore.
func (s *TxStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.Audit.Create(ctx, entry)
}

// UpdateTransactionStatus implements scoring.VerdictStore.
func (s *TxStore) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.Transactions.UpdateStatus(ctx, id, status)
}
