package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/rules"
)

// fakeSignal returns a fixed score.
type fakeSignal struct {
	score   float64
	details models.JSONB
	err     error
}

func (f *fakeSignal) Evaluate(ctx context.Context, txn *models.Transaction) (float64, models.JSONB, error) {
	return f.score, f.details, f.err
}

// fakePredictor returns a fixed optional ML score.
type fakePredictor struct {
	score *float64
}

func (f *fakePredictor) Predict(ctx context.Context, txn *models.Transaction) *float64 {
	return f.score
}

// fakeRuleSource serves a fixed rule set.
type fakeRuleSource struct {
	rules []*models.FraudRule
	err   error
}

func (f *fakeRuleSource) GetActive(ctx context.Context) ([]*models.FraudRule, error) {
	return f.rules, f.err
}

// fakeVerdictStore records the pipeline's writes.
type fakeVerdictStore struct {
	scores        []*models.RiskScore
	alerts        []*models.Alert
	audits        []*models.AuditLog
	statusUpdates map[uuid.UUID]string

	scoreErr error
	alertErr error
}

func newFakeVerdictStore() *fakeVerdictStore {
	return &fakeVerdictStore{statusUpdates: map[uuid.UUID]string{}}
}

func (f *fakeVerdictStore) CreateRiskScore(ctx context.Context, score *models.RiskScore) error {
	if f.scoreErr != nil {
		return f.scoreErr
	}
	f.scores = append(f.scores, score)
	return nil
}

func (f *fakeVerdictStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if f.alertErr != nil {
		return f.alertErr
	}
	alert.ID = uuid.New()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeVerdictStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeVerdictStore) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.statusUpdates[id] = status
	return nil
}

func riskConfig() configs.RiskConfig {
	return configs.RiskConfig{ScoreHigh: 0.7, ScoreCritical: 0.9}
}

// newTestEngine builds an engine with fully controlled signals. The rule
// source is empty so the rule score is 0 unless ruleSet is provided.
func newTestEngine(ruleSet []*models.FraudRule, velocity, anomaly float64, ml *float64) *Engine {
	return NewEngine(
		&fakeRuleSource{rules: ruleSet},
		rules.NewEngine(),
		&fakeSignal{score: velocity, details: models.JSONB{"breached": velocity >= 1.0}},
		&fakeSignal{score: anomaly, details: models.JSONB{}},
		&fakePredictor{score: ml},
		riskConfig(),
	)
}

// alwaysRule fires for any transaction with a positive amount.
func alwaysRule(code string, weight float64) *models.FraudRule {
	return &models.FraudRule{
		Code:     code,
		Name:     code,
		Weight:   weight,
		IsActive: true,
		Condition: models.JSONB{
			"field":     "amount_zar",
			"operator":  "gt",
			"threshold": 0.0,
		},
	}
}

func scoringTxn() *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New(),
		SenderID:  "acc-001",
		AmountZAR: 1000,
		Channel:   models.ChannelPOS,
		Status:    models.TransactionStatusPending,
	}
}

func TestScoreTransaction_BlendWithML(t *testing.T) {
	ml := 0.8
	engine := newTestEngine([]*models.FraudRule{alwaysRule("R1", 0.5)}, 0.2, 0.1, &ml)
	store := newFakeVerdictStore()
	txn := scoringTxn()

	score, alert, err := engine.ScoreTransaction(context.Background(), store, txn)
	require.NoError(t, err)

	// 0.5*0.30 + 0.2*0.22 + 0.1*0.23 + 0.8*0.25
	assert.Equal(t, 0.417, score.CompositeScore)
	assert.Equal(t, models.RiskLevelMedium, score.RiskLevel)
	assert.Equal(t, []string{"R1"}, score.TriggeredRules)
	require.NotNil(t, score.MLScore)
	assert.Equal(t, 0.8, *score.MLScore)
	assert.Nil(t, alert)

	// MEDIUM produces no alert and no status change.
	assert.Empty(t, store.alerts)
	assert.Empty(t, store.statusUpdates)
	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionTransactionScored, store.audits[0].Action)
	assert.Equal(t, "system", store.audits[0].Actor)
}

func TestScoreTransaction_BlendWithoutML(t *testing.T) {
	engine := newTestEngine(nil, 0.5, 0.5, nil)
	store := newFakeVerdictStore()

	score, _, err := engine.ScoreTransaction(context.Background(), store, scoringTxn())
	require.NoError(t, err)

	// 0*0.35 + 0.5*0.33 + 0.5*0.32
	assert.Equal(t, 0.325, score.CompositeScore)
	assert.Nil(t, score.MLScore)
	assert.Nil(t, score.Explanation["ml_score"])

	weights := score.Explanation["weights"].(map[string]interface{})
	assert.Equal(t, 0.35, weights["rule"])
	assert.Equal(t, 0.0, weights["ml"])
}

func TestScoreTransaction_ThresholdsAreInclusive(t *testing.T) {
	cases := []struct {
		name   string
		signal float64
		level  string
	}{
		{"exactly high", 0.7, models.RiskLevelHigh},
		{"exactly critical", 0.9, models.RiskLevelCritical},
		{"exactly medium", 0.4, models.RiskLevelMedium},
		{"just below medium", 0.3999, models.RiskLevelLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Equal signals with no ML make the composite equal the
			// signal value: s*(0.35+0.33+0.32) = s. Rule score comes
			// from a rule whose weight matches.
			engine := newTestEngine([]*models.FraudRule{alwaysRule("R1", tc.signal)}, tc.signal, tc.signal, nil)
			store := newFakeVerdictStore()

			score, _, err := engine.ScoreTransaction(context.Background(), store, scoringTxn())
			require.NoError(t, err)
			assert.Equal(t, tc.signal, score.CompositeScore)
			assert.Equal(t, tc.level, score.RiskLevel)
		})
	}
}

func TestScoreTransaction_HighSeverityRaisesAlertAndFlags(t *testing.T) {
	engine := newTestEngine([]*models.FraudRule{alwaysRule("R1", 0.8)}, 0.8, 0.8, nil)
	store := newFakeVerdictStore()
	txn := scoringTxn()

	score, alert, err := engine.ScoreTransaction(context.Background(), store, txn)
	require.NoError(t, err)

	assert.Equal(t, models.RiskLevelHigh, score.RiskLevel)
	require.NotNil(t, alert)
	assert.Equal(t, models.RiskLevelHigh, alert.Severity)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Contains(t, alert.Message, txn.ID.String())
	assert.Contains(t, alert.Message, "R1")

	assert.Equal(t, models.TransactionStatusFlagged, store.statusUpdates[txn.ID])
	assert.Equal(t, models.TransactionStatusFlagged, txn.Status)
}

func TestScoreTransaction_AlertTypePriority(t *testing.T) {
	cases := []struct {
		name      string
		ruleScore float64
		velocity  float64
		alertType string
	}{
		{"rule evidence wins over velocity breach", 0.8, 1.0, models.AlertTypeFraudSuspected},
		{"velocity breach without rule evidence", 0.4, 1.0, models.AlertTypeVelocityBreach},
		{"anomaly fallback", 0.4, 0.9, models.AlertTypeAnomalyDetected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine([]*models.FraudRule{alwaysRule("R1", tc.ruleScore)}, tc.velocity, 1.0, nil)
			store := newFakeVerdictStore()

			_, alert, err := engine.ScoreTransaction(context.Background(), store, scoringTxn())
			require.NoError(t, err)
			require.NotNil(t, alert)
			assert.Equal(t, tc.alertType, alert.AlertType)
		})
	}
}

func TestScoreTransaction_RuleSourceFailure(t *testing.T) {
	engine := NewEngine(
		&fakeRuleSource{err: errors.New("db down")},
		rules.NewEngine(),
		&fakeSignal{},
		&fakeSignal{},
		&fakePredictor{},
		riskConfig(),
	)

	_, _, err := engine.ScoreTransaction(context.Background(), newFakeVerdictStore(), scoringTxn())
	assert.Error(t, err)
}

func TestScoreTransaction_SignalFailure(t *testing.T) {
	engine := NewEngine(
		&fakeRuleSource{},
		rules.NewEngine(),
		&fakeSignal{err: errors.New("window query failed")},
		&fakeSignal{},
		&fakePredictor{},
		riskConfig(),
	)

	_, _, err := engine.ScoreTransaction(context.Background(), newFakeVerdictStore(), scoringTxn())
	assert.Error(t, err)
}

func TestScoreTransaction_StoreFailurePropagates(t *testing.T) {
	engine := newTestEngine(nil, 0.1, 0.1, nil)
	store := newFakeVerdictStore()
	store.scoreErr = errors.New("constraint violation")

	_, _, err := engine.ScoreTransaction(context.Background(), store, scoringTxn())
	assert.Error(t, err)
	assert.Empty(t, store.audits)
}

func TestScoreTransaction_CompositeCappedAtOne(t *testing.T) {
	ml := 1.0
	engine := newTestEngine([]*models.FraudRule{alwaysRule("R1", 1.0)}, 1.0, 1.0, &ml)
	store := newFakeVerdictStore()

	score, _, err := engine.ScoreTransaction(context.Background(), store, scoringTxn())
	require.NoError(t, err)

	assert.Equal(t, 1.0, score.CompositeScore)
	assert.Equal(t, models.RiskLevelCritical, score.RiskLevel)
}
