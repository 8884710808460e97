package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// Predictor produces an optional model-based anomaly score. A nil result
// means the model is unavailable or inference failed; scoring proceeds
// without it.
type Predictor interface {
	Predict(ctx context.Context, txn *models.Transaction) *float64
}

// channelOrdinals must match the encoding used when the model was trained.
var channelOrdinals = map[string]float64{
	models.ChannelAPI:           0,
	models.ChannelMobileBanking: 1,
	models.ChannelPOS:           2,
	models.ChannelUSSD:          3,
}

// modelParams is the JSON model artifact: a standardized linear scorer
// exported from the training pipeline. The raw output follows the
// decision-function convention where higher means more normal.
type modelParams struct {
	FeatureMeans  []float64 `json:"feature_means"`
	FeatureScales []float64 `json:"feature_scales"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
	Version       string    `json:"version"`
}

// MLScorer loads the model artifact once, lazily, and serves inference for
// the process lifetime. Every failure path degrades to a nil score.
type MLScorer struct {
	cfg configs.MLConfig

	loadOnce sync.Once
	model    *modelParams
}

// NewMLScorer creates an ML scorer. The model file is not touched until the
// first Predict call.
func NewMLScorer(cfg configs.MLConfig) *MLScorer {
	return &MLScorer{cfg: cfg}
}

// Predict returns a score in [0,1] where 1 is most anomalous, or nil when
// the model is disabled, missing, or inference fails.
func (m *MLScorer) Predict(ctx context.Context, txn *models.Transaction) *float64 {
	if !m.cfg.Enabled {
		return nil
	}

	model := m.load()
	if model == nil {
		return nil
	}

	features := extractFeatures(txn)

	raw, err := model.decisionFunction(features)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("ML inference failed")
		return nil
	}

	score := normalize(raw)
	log.Debug().
		Float64("raw_score", raw).
		Float64("normalized", score).
		Str("transaction_id", txn.ID.String()).
		Msg("ML score computed")

	return &score
}

func (m *MLScorer) load() *modelParams {
	m.loadOnce.Do(func() {
		data, err := os.ReadFile(m.cfg.ModelPath)
		if err != nil {
			log.Warn().Str("path", m.cfg.ModelPath).Err(err).Msg("Model file not found, ML scoring disabled")
			return
		}

		var params modelParams
		if err := json.Unmarshal(data, &params); err != nil {
			log.Warn().Str("path", m.cfg.ModelPath).Err(err).Msg("Model file is malformed, ML scoring disabled")
			return
		}

		if len(params.Weights) != len(params.FeatureMeans) || len(params.Weights) != len(params.FeatureScales) {
			log.Warn().Str("path", m.cfg.ModelPath).Msg("Model dimensions are inconsistent, ML scoring disabled")
			return
		}

		m.model = &params
		log.Info().Str("path", m.cfg.ModelPath).Str("version", params.Version).Msg("ML model loaded")
	})

	return m.model
}

// extractFeatures builds the inference vector. Order and encoding must match
// the training pipeline: amount, channel ordinal, hour of day (UTC),
// international flag.
func extractFeatures(txn *models.Transaction) []float64 {
	channel, ok := channelOrdinals[txn.Channel]
	if !ok {
		channel = -1
	}

	var isInternational float64
	if flagged, _ := txn.Metadata["ip_country_flagged"].(string); flagged == "true" {
		isInternational = 1
	}

	return []float64{
		txn.AmountZAR,
		channel,
		float64(txn.CreatedAt.UTC().Hour()),
		isInternational,
	}
}

func (p *modelParams) decisionFunction(features []float64) (float64, error) {
	if len(features) != len(p.Weights) {
		return 0, fmt.Errorf("feature vector has %d entries, model expects %d", len(features), len(p.Weights))
	}

	raw := p.Bias
	for i, x := range features {
		scale := p.FeatureScales[i]
		if scale == 0 {
			scale = 1
		}
		raw += p.Weights[i] * ((x - p.FeatureMeans[i]) / scale)
	}

	return raw, nil
}

// normalize maps decision-function output (roughly -0.5 to +0.5, higher =
// more normal) into [0,1] where 1 is most anomalous.
func normalize(raw float64) float64 {
	return math.Min(math.Max((-raw+0.5)/1.0, 0), 1)
}
