package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// fakeStats serves canned aggregates for the velocity and anomaly signals.
type fakeStats struct {
	windowCount int
	windowSum   float64
	mean        *float64
	stddev      *float64
	sampleSize  int
	err         error
}

func (f *fakeStats) WindowStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (int, float64, error) {
	return f.windowCount, f.windowSum, f.err
}

func (f *fakeStats) AmountStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (*float64, *float64, int, error) {
	return f.mean, f.stddev, f.sampleSize, f.err
}

func velocityConfig() configs.VelocityConfig {
	return configs.VelocityConfig{
		Window:      300 * time.Second,
		MaxTxnCount: 10,
		MaxTotalZAR: 50000,
	}
}

func TestVelocity_FullBreach(t *testing.T) {
	// 10 prior transactions of 6000 ZAR inside the window saturate both
	// ratios.
	calc := NewVelocityCalculator(&fakeStats{windowCount: 10, windowSum: 60000}, velocityConfig())

	score, details, err := calc.Evaluate(context.Background(), &models.Transaction{ID: uuid.New(), SenderID: "acc-001"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, score)
	assert.Equal(t, 1.0, details["count_ratio"])
	assert.Equal(t, 1.0, details["amount_ratio"])
	assert.True(t, details["breached"].(bool))
	assert.Equal(t, 300, details["window_seconds"])
	assert.Equal(t, 10, details["txn_count_in_window"])
	assert.Equal(t, 60000.0, details["txn_sum_zar"])
}

func TestVelocity_PartialPressure(t *testing.T) {
	// Half the count cap and half the amount cap blend to 0.5.
	calc := NewVelocityCalculator(&fakeStats{windowCount: 5, windowSum: 25000}, velocityConfig())

	score, details, err := calc.Evaluate(context.Background(), &models.Transaction{ID: uuid.New(), SenderID: "acc-001"})
	require.NoError(t, err)

	assert.Equal(t, 0.5, score)
	assert.Equal(t, 0.5, details["count_ratio"])
	assert.Equal(t, 0.5, details["amount_ratio"])
	assert.False(t, details["breached"].(bool))
}

func TestVelocity_QuietSender(t *testing.T) {
	calc := NewVelocityCalculator(&fakeStats{}, velocityConfig())

	score, details, err := calc.Evaluate(context.Background(), &models.Transaction{ID: uuid.New(), SenderID: "acc-001"})
	require.NoError(t, err)

	assert.Zero(t, score)
	assert.False(t, details["breached"].(bool))
}

func TestVelocity_RatiosCappedIndividually(t *testing.T) {
	// Amount far past the cap with a low count: 0.4*0.1 + 0.6*1.0.
	calc := NewVelocityCalculator(&fakeStats{windowCount: 1, windowSum: 500000}, velocityConfig())

	score, _, err := calc.Evaluate(context.Background(), &models.Transaction{ID: uuid.New(), SenderID: "acc-001"})
	require.NoError(t, err)

	assert.Equal(t, 0.64, score)
}

func TestVelocity_StatsErrorPropagates(t *testing.T) {
	calc := NewVelocityCalculator(&fakeStats{err: context.DeadlineExceeded}, velocityConfig())

	_, _, err := calc.Evaluate(context.Background(), &models.Transaction{ID: uuid.New(), SenderID: "acc-001"})
	assert.Error(t, err)
}
