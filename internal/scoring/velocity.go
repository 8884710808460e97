package scoring

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// TransactionStats provides the committed-state aggregates the velocity and
// anomaly signals read. Implemented by repositories.TransactionRepository;
// tests inject deterministic stand-ins.
type TransactionStats interface {
	WindowStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (count int, totalZAR float64, err error)
	AmountStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (mean, stddev *float64, n int, err error)
}

// VelocityCalculator scores per-sender transaction bursts over a sliding
// window. The transaction under evaluation is excluded from the window.
type VelocityCalculator struct {
	stats TransactionStats
	cfg   configs.VelocityConfig
}

// NewVelocityCalculator creates a velocity calculator.
func NewVelocityCalculator(stats TransactionStats, cfg configs.VelocityConfig) *VelocityCalculator {
	return &VelocityCalculator{stats: stats, cfg: cfg}
}

// Evaluate returns the velocity score in [0,1] with a breakdown for the
// explanation envelope. Blend is 40% count pressure, 60% amount pressure.
func (v *VelocityCalculator) Evaluate(ctx context.Context, txn *models.Transaction) (float64, models.JSONB, error) {
	windowStart := time.Now().UTC().Add(-v.cfg.Window)

	count, totalZAR, err := v.stats.WindowStats(ctx, txn.SenderID, txn.ID, windowStart)
	if err != nil {
		return 0, nil, err
	}

	countRatio := math.Min(float64(count)/float64(v.cfg.MaxTxnCount), 1.0)
	amountRatio := math.Min(totalZAR/v.cfg.MaxTotalZAR, 1.0)

	score := round4(0.4*countRatio + 0.6*amountRatio)
	breached := score >= 1.0

	details := models.JSONB{
		"window_seconds":      int(v.cfg.Window.Seconds()),
		"txn_count_in_window": count,
		"max_txn_count":       v.cfg.MaxTxnCount,
		"txn_sum_zar":         round2(totalZAR),
		"max_sum_zar":         v.cfg.MaxTotalZAR,
		"count_ratio":         round4(countRatio),
		"amount_ratio":        round4(amountRatio),
		"breached":            breached,
	}

	if breached {
		log.Warn().
			Str("sender_id", txn.SenderID).
			Int("txn_count", count).
			Float64("txn_sum_zar", totalZAR).
			Msg("Velocity breach")
	}

	return score, details, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
