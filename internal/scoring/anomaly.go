package scoring

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// AnomalyCalculator scores the current amount against the sender's
// historical amount distribution via a population z-score.
type AnomalyCalculator struct {
	stats TransactionStats
	cfg   configs.AnomalyConfig
}

// NewAnomalyCalculator creates an anomaly calculator.
func NewAnomalyCalculator(stats TransactionStats, cfg configs.AnomalyConfig) *AnomalyCalculator {
	return &AnomalyCalculator{stats: stats, cfg: cfg}
}

// Evaluate returns the anomaly score in [0,1]. Fewer than 3 prior samples,
// a missing mean, or zero variance yield a neutral 0 score, never an error.
func (a *AnomalyCalculator) Evaluate(ctx context.Context, txn *models.Transaction) (float64, models.JSONB, error) {
	lookbackStart := time.Now().UTC().AddDate(0, 0, -a.cfg.LookbackDays)

	mean, stddev, sampleSize, err := a.stats.AmountStats(ctx, txn.SenderID, txn.ID, lookbackStart)
	if err != nil {
		return 0, nil, err
	}

	if sampleSize < 3 || mean == nil || stddev == nil || *stddev == 0 {
		details := models.JSONB{
			"z_score":     nil,
			"sample_size": sampleSize,
			"note":        "Insufficient history for anomaly detection",
		}
		if mean != nil {
			details["mean_zar"] = round2(*mean)
		}
		return 0, details, nil
	}

	zScore := math.Abs(txn.AmountZAR-*mean) / *stddev
	score := round4(math.Min(zScore/a.cfg.ZScoreThreshold, 1.0))
	isAnomaly := zScore >= a.cfg.ZScoreThreshold

	details := models.JSONB{
		"z_score":          round4(zScore),
		"mean_zar":         round2(*mean),
		"stddev_zar":       round2(*stddev),
		"sample_size":      sampleSize,
		"threshold_zscore": a.cfg.ZScoreThreshold,
		"is_anomaly":       isAnomaly,
	}

	if isAnomaly {
		log.Warn().
			Str("sender_id", txn.SenderID).
			Float64("amount_zar", txn.AmountZAR).
			Float64("z_score", zScore).
			Msg("Amount anomaly detected")
	}

	return score, details, nil
}
