package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/rules"
)

// Signal is one read-only scoring input: a score in [0,1] plus detail for
// the explanation envelope.
type Signal interface {
	Evaluate(ctx context.Context, txn *models.Transaction) (float64, models.JSONB, error)
}

// RuleSource loads the active rule set.
type RuleSource interface {
	GetActive(ctx context.Context) ([]*models.FraudRule, error)
}

// VerdictStore receives the pipeline's writes. Implementations bind all
// writes to one open transaction (repositories.TxStore).
type VerdictStore interface {
	CreateRiskScore(ctx context.Context, score *models.RiskScore) error
	CreateAlert(ctx context.Context, alert *models.Alert) error
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Composite blend weights. With an ML score present the three base signals
// give up weight to it; without one the ML share is redistributed.
const (
	weightRuleWithML     = 0.30
	weightVelocityWithML = 0.22
	weightAnomalyWithML  = 0.23
	weightML             = 0.25

	weightRuleNoML     = 0.35
	weightVelocityNoML = 0.33
	weightAnomalyNoML  = 0.32

	mediumThreshold = 0.4
)

// Engine runs the full scoring pipeline for one transaction.
type Engine struct {
	ruleSource RuleSource
	ruleEngine *rules.Engine
	velocity   Signal
	anomaly    Signal
	ml         Predictor
	cfg        configs.RiskConfig
}

// NewEngine wires the scoring pipeline.
func NewEngine(ruleSource RuleSource, ruleEngine *rules.Engine, velocity, anomaly Signal, ml Predictor, cfg configs.RiskConfig) *Engine {
	return &Engine{
		ruleSource: ruleSource,
		ruleEngine: ruleEngine,
		velocity:   velocity,
		anomaly:    anomaly,
		ml:         ml,
		cfg:        cfg,
	}
}

// ScoreTransaction evaluates rules, velocity, anomaly, and the optional ML
// signal, blends them, classifies the result, and writes the verdict,
// conditional alert, and audit entry through store. The returned alert is
// nil below HIGH. Signal failures surface as errors; ML failure degrades to
// an absent score.
func (e *Engine) ScoreTransaction(ctx context.Context, store VerdictStore, txn *models.Transaction) (*models.RiskScore, *models.Alert, error) {
	activeRules, err := e.ruleSource.GetActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading active rules: %w", err)
	}

	ruleResult := e.ruleEngine.Evaluate(txn, activeRules)

	velocityScore, velocityDetails, err := e.velocity.Evaluate(ctx, txn)
	if err != nil {
		return nil, nil, fmt.Errorf("velocity signal: %w", err)
	}

	anomalyScore, anomalyDetails, err := e.anomaly.Evaluate(ctx, txn)
	if err != nil {
		return nil, nil, fmt.Errorf("anomaly signal: %w", err)
	}

	mlScore := e.ml.Predict(ctx, txn)

	composite := blend(ruleResult.RuleScore, velocityScore, anomalyScore, mlScore)
	riskLevel := e.classify(composite)

	explanation := models.JSONB{
		"rules":    map[string]interface{}(ruleResult.Explanation),
		"velocity": map[string]interface{}(velocityDetails),
		"anomaly":  map[string]interface{}(anomalyDetails),
		"weights":  blendWeights(mlScore != nil),
	}
	if mlScore != nil {
		explanation["ml_score"] = round4(*mlScore)
	} else {
		explanation["ml_score"] = nil
	}

	score := &models.RiskScore{
		TransactionID:  txn.ID,
		CompositeScore: composite,
		RuleScore:      ruleResult.RuleScore,
		VelocityScore:  velocityScore,
		AnomalyScore:   anomalyScore,
		RiskLevel:      riskLevel,
		TriggeredRules: ruleResult.TriggeredCodes,
		Explanation:    explanation,
	}
	if mlScore != nil {
		rounded := round4(*mlScore)
		score.MLScore = &rounded
	}

	if err := store.CreateRiskScore(ctx, score); err != nil {
		return nil, nil, fmt.Errorf("persisting risk score: %w", err)
	}

	var alert *models.Alert
	if riskLevel == models.RiskLevelHigh || riskLevel == models.RiskLevelCritical {
		if err := store.UpdateTransactionStatus(ctx, txn.ID, models.TransactionStatusFlagged); err != nil {
			return nil, nil, fmt.Errorf("flagging transaction: %w", err)
		}
		txn.Status = models.TransactionStatusFlagged

		alert = &models.Alert{
			TransactionID: txn.ID,
			Severity:      riskLevel,
			AlertType:     chooseAlertType(ruleResult.RuleScore, velocityScore),
			Message: fmt.Sprintf("Transaction %s scored %.2f [%s]. Triggered rules: %v.",
				txn.ID, composite, riskLevel, ruleResult.TriggeredCodes),
			Status: models.AlertStatusOpen,
		}
		if err := store.CreateAlert(ctx, alert); err != nil {
			return nil, nil, fmt.Errorf("persisting alert: %w", err)
		}

		log.Warn().
			Str("severity", riskLevel).
			Str("transaction_id", txn.ID.String()).
			Msg("Alert created")
	}

	audit := &models.AuditLog{
		TransactionID: &txn.ID,
		Actor:         "system",
		Action:        models.AuditActionTransactionScored,
		Details: models.JSONB{
			"composite_score": composite,
			"risk_level":      riskLevel,
			"triggered_rules": ruleResult.TriggeredCodes,
		},
	}
	if err := store.CreateAuditLog(ctx, audit); err != nil {
		return nil, nil, fmt.Errorf("writing audit log: %w", err)
	}

	log.Info().
		Str("transaction_id", txn.ID.String()).
		Float64("composite", composite).
		Str("risk_level", riskLevel).
		Msg("Transaction scored")

	return score, alert, nil
}

func blend(ruleScore, velocityScore, anomalyScore float64, mlScore *float64) float64 {
	var composite float64
	if mlScore != nil {
		composite = ruleScore*weightRuleWithML +
			velocityScore*weightVelocityWithML +
			anomalyScore*weightAnomalyWithML +
			*mlScore*weightML
	} else {
		composite = ruleScore*weightRuleNoML +
			velocityScore*weightVelocityNoML +
			anomalyScore*weightAnomalyNoML
	}

	return round4(math.Min(composite, 1.0))
}

func blendWeights(withML bool) map[string]interface{} {
	if withML {
		return map[string]interface{}{
			"rule":     weightRuleWithML,
			"velocity": weightVelocityWithML,
			"anomaly":  weightAnomalyWithML,
			"ml":       weightML,
		}
	}
	return map[string]interface{}{
		"rule":     weightRuleNoML,
		"velocity": weightVelocityNoML,
		"anomaly":  weightAnomalyNoML,
		"ml":       0.0,
	}
}

// classify maps a composite score to a level. All bounds are inclusive, so
// an exact threshold value falls into the higher class.
func (e *Engine) classify(score float64) string {
	switch {
	case score >= e.cfg.ScoreCritical:
		return models.RiskLevelCritical
	case score >= e.cfg.ScoreHigh:
		return models.RiskLevelHigh
	case score >= mediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// chooseAlertType picks the dominant cause. Rule evidence wins over a
// velocity breach, which wins over the anomaly fallback.
func chooseAlertType(ruleScore, velocityScore float64) string {
	if ruleScore > 0.5 {
		return models.AlertTypeFraudSuspected
	}
	if velocityScore >= 1.0 {
		return models.AlertTypeVelocityBreach
	}
	return models.AlertTypeAnomalyDetected
}
