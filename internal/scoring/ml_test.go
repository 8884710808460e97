package scoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mlTxn() *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New(),
		SenderID:  "acc-001",
		AmountZAR: 1500,
		Channel:   models.ChannelMobileBanking,
		CreatedAt: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		Metadata:  models.JSONB{"ip_country_flagged": "false"},
	}
}

const validModel = `{
	"feature_means": [1200.0, 1.5, 12.0, 0.05],
	"feature_scales": [800.0, 1.1, 6.9, 0.2],
	"weights": [-0.4, 0.05, -0.02, -0.3],
	"bias": 0.1,
	"version": "2026-02-01"
}`

func TestMLScorer_Disabled(t *testing.T) {
	scorer := NewMLScorer(configs.MLConfig{Enabled: false, ModelPath: "does-not-matter"})
	assert.Nil(t, scorer.Predict(context.Background(), mlTxn()))
}

func TestMLScorer_MissingModelFile(t *testing.T) {
	scorer := NewMLScorer(configs.MLConfig{Enabled: true, ModelPath: "/nonexistent/model.json"})
	assert.Nil(t, scorer.Predict(context.Background(), mlTxn()))

	// The load failure is sticky for the process lifetime.
	assert.Nil(t, scorer.Predict(context.Background(), mlTxn()))
}

func TestMLScorer_MalformedModelFile(t *testing.T) {
	path := writeModel(t, `{not json`)
	scorer := NewMLScorer(configs.MLConfig{Enabled: true, ModelPath: path})
	assert.Nil(t, scorer.Predict(context.Background(), mlTxn()))
}

func TestMLScorer_InconsistentDimensions(t *testing.T) {
	path := writeModel(t, `{
		"feature_means": [1.0, 2.0],
		"feature_scales": [1.0, 1.0, 1.0],
		"weights": [0.5, 0.5],
		"bias": 0.0,
		"version": "bad"
	}`)
	scorer := NewMLScorer(configs.MLConfig{Enabled: true, ModelPath: path})
	assert.Nil(t, scorer.Predict(context.Background(), mlTxn()))
}

func TestMLScorer_ValidModelScoresInRange(t *testing.T) {
	path := writeModel(t, validModel)
	scorer := NewMLScorer(configs.MLConfig{Enabled: true, ModelPath: path})

	score := scorer.Predict(context.Background(), mlTxn())
	require.NotNil(t, score)
	assert.GreaterOrEqual(t, *score, 0.0)
	assert.LessOrEqual(t, *score, 1.0)
}

func TestNormalize_Clamps(t *testing.T) {
	assert.Equal(t, 1.0, normalize(-5.0))
	assert.Equal(t, 0.0, normalize(5.0))
	assert.Equal(t, 0.5, normalize(0.0))
}

func TestExtractFeatures(t *testing.T) {
	txn := mlTxn()
	txn.Metadata["ip_country_flagged"] = "true"

	features := extractFeatures(txn)
	require.Len(t, features, 4)

	assert.Equal(t, 1500.0, features[0])
	assert.Equal(t, 1.0, features[1]) // mobile_banking ordinal
	assert.Equal(t, 14.0, features[2])
	assert.Equal(t, 1.0, features[3])
}

func TestExtractFeatures_UnknownChannel(t *testing.T) {
	txn := mlTxn()
	txn.Channel = "carrier_pigeon"

	features := extractFeatures(txn)
	assert.Equal(t, -1.0, features[1])
}
