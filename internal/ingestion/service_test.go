package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/httpapi"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

func amountConfig() configs.AmountConfig {
	return configs.AmountConfig{MinZAR: 0.01, MaxZAR: 1e7}
}

func validRequest() *TransactionRequest {
	return &TransactionRequest{
		SenderID:   "acc-001",
		ReceiverID: "acc-002",
		AmountZAR:  1500,
		Channel:    models.ChannelMobileBanking,
	}
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)

	var apiErr *httpapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestValidate_Accepts(t *testing.T) {
	req := validRequest()
	req.Currency = "ZAR"
	req.Geolocation = models.JSONB{"lat": -26.2041, "lng": 28.0473}

	assert.NoError(t, req.Validate(amountConfig()))
}

func TestValidate_AmountBounds(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
		ok     bool
	}{
		{"at minimum", 0.01, true},
		{"below minimum", 0.009, false},
		{"zero", 0, false},
		{"negative", -5, false},
		{"at maximum", 1e7, true},
		{"above maximum", 1e7 + 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.AmountZAR = tc.amount

			err := req.Validate(amountConfig())
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assertValidationError(t, err)
			}
		})
	}
}

func TestValidate_Channel(t *testing.T) {
	for channel := range models.ValidChannels {
		req := validRequest()
		req.Channel = channel
		assert.NoError(t, req.Validate(amountConfig()), channel)
	}

	req := validRequest()
	req.Channel = "telegraph"
	assertValidationError(t, req.Validate(amountConfig()))
}

func TestValidate_Currency(t *testing.T) {
	req := validRequest()
	req.Currency = "ZARR"
	assertValidationError(t, req.Validate(amountConfig()))

	req.Currency = ""
	assert.NoError(t, req.Validate(amountConfig()))
}

func TestValidate_Geolocation(t *testing.T) {
	cases := []struct {
		name string
		geo  models.JSONB
		ok   bool
	}{
		{"absent", nil, true},
		{"valid", models.JSONB{"lat": -33.92, "lng": 18.42}, true},
		{"missing lng", models.JSONB{"lat": -33.92}, false},
		{"non-numeric lat", models.JSONB{"lat": "south", "lng": 18.42}, false},
		{"lat out of range", models.JSONB{"lat": 91.0, "lng": 0.0}, false},
		{"lng out of range", models.JSONB{"lat": 0.0, "lng": -181.0}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.Geolocation = tc.geo

			err := req.Validate(amountConfig())
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assertValidationError(t, err)
			}
		})
	}
}
