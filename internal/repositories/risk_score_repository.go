package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

var ErrRiskScoreNotFound = errors.New("risk score not found")

// RiskScoreRepository handles risk score database operations
type RiskScoreRepository struct {
	q Querier
}

// NewRiskScoreRepository creates a new risk score repository
func NewRiskScoreRepository(db *Database) *RiskScoreRepository {
	return &RiskScoreRepository{q: db.Pool}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *RiskScoreRepository) WithTx(tx pgx.Tx) *RiskScoreRepository {
	return &RiskScoreRepository{q: tx}
}

// Create inserts the verdict for a transaction. The transaction_id unique
// index enforces exactly one score per transaction.
func (r *RiskScoreRepository) Create(ctx context.Context, score *models.RiskScore) error {
	query := `
		INSERT INTO risk_scores (
			id, transaction_id, composite_score, rule_score, velocity_score,
			anomaly_score, ml_score, risk_level, triggered_rules, explanation, scored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	score.ID = uuid.New()
	score.ScoredAt = time.Now().UTC()
	if score.TriggeredRules == nil {
		score.TriggeredRules = []string{}
	}

	explanationBytes, _ := score.Explanation.Value()

	_, err := r.q.Exec(ctx, query,
		score.ID,
		score.TransactionID,
		score.CompositeScore,
		score.RuleScore,
		score.VelocityScore,
		score.AnomalyScore,
		score.MLScore,
		score.RiskLevel,
		pq.Array(score.TriggeredRules),
		explanationBytes,
		score.ScoredAt,
	)

	return err
}

// GetByTransactionID retrieves the verdict for a transaction.
func (r *RiskScoreRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.RiskScore, error) {
	query := `
		SELECT id, transaction_id, composite_score, rule_score, velocity_score,
			   anomaly_score, ml_score, risk_level, triggered_rules, explanation, scored_at
		FROM risk_scores
		WHERE transaction_id = $1
	`

	score := &models.RiskScore{}
	var explanationBytes []byte

	err := r.q.QueryRow(ctx, query, transactionID).Scan(
		&score.ID,
		&score.TransactionID,
		&score.CompositeScore,
		&score.RuleScore,
		&score.VelocityScore,
		&score.AnomalyScore,
		&score.MLScore,
		&score.RiskLevel,
		pq.Array(&score.TriggeredRules),
		&explanationBytes,
		&score.ScoredAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRiskScoreNotFound
		}
		return nil, err
	}

	score.Explanation.Scan(explanationBytes)
	return score, nil
}

// AvgComposite returns the all-time average composite score, 0 when no
// transaction has been scored yet.
func (r *RiskScoreRepository) AvgComposite(ctx context.Context) (float64, error) {
	query := `SELECT ROUND(COALESCE(AVG(composite_score), 0)::numeric, 4) FROM risk_scores`

	var avg float64
	err := r.q.QueryRow(ctx, query).Scan(&avg)
	return avg, err
}

// TopRisk returns the riskiest transactions joined with their verdicts,
// ordered by composite score descending.
func (r *RiskScoreRepository) TopRisk(ctx context.Context, limit int) ([]*models.TransactionSummary, error) {
	query := `
		SELECT t.id, t.external_id, t.sender_id, t.receiver_id, t.amount_zar,
			   t.currency, t.channel, t.status, rs.risk_level, rs.composite_score,
			   t.created_at
		FROM transactions t
		JOIN risk_scores rs ON rs.transaction_id = t.id
		ORDER BY rs.composite_score DESC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.TransactionSummary
	for rows.Next() {
		s := &models.TransactionSummary{}
		if err := rows.Scan(
			&s.ID,
			&s.ExternalID,
			&s.SenderID,
			&s.ReceiverID,
			&s.AmountZAR,
			&s.Currency,
			&s.Channel,
			&s.Status,
			&s.RiskLevel,
			&s.CompositeScore,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// HourlyTrend buckets composite scores by hour over the trailing window.
func (r *RiskScoreRepository) HourlyTrend(ctx context.Context, since time.Time) ([]*models.RiskTrendBucket, error) {
	query := `
		SELECT date_trunc('hour', scored_at) AS hour,
			   ROUND(AVG(composite_score)::numeric, 4) AS avg_score,
			   COUNT(*) AS txn_count
		FROM risk_scores
		WHERE scored_at >= $1
		GROUP BY hour
		ORDER BY hour ASC
	`

	rows, err := r.q.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []*models.RiskTrendBucket
	for rows.Next() {
		b := &models.RiskTrendBucket{}
		if err := rows.Scan(&b.Hour, &b.AvgScore, &b.TxnCount); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}
