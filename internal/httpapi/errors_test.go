package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-123")

	Respond(c, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return recorder, body
}

func TestRespond_Taxonomy(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{Validation("bad input"), "VALIDATION_ERROR", http.StatusUnprocessableEntity},
		{Transaction("rejected"), "TRANSACTION_ERROR", http.StatusBadRequest},
		{NotFound("missing"), "NOT_FOUND", http.StatusNotFound},
		{Conflict("duplicate"), "CONFLICT", http.StatusConflict},
		{Authentication("denied"), "AUTHENTICATION_ERROR", http.StatusUnauthorized},
		{Scoring("pipeline failed", errors.New("boom")), "SCORING_ERROR", http.StatusInternalServerError},
		{Database("query failed", errors.New("boom")), "DATABASE_ERROR", http.StatusInternalServerError},
		{Kafka("brokers down", errors.New("boom")), "KAFKA_ERROR", http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			recorder, body := respond(t, tc.err)

			assert.Equal(t, tc.status, recorder.Code)

			envelope := body["error"].(map[string]interface{})
			assert.Equal(t, tc.code, envelope["code"])
			assert.Equal(t, "req-123", envelope["request_id"])
			assert.NotEmpty(t, envelope["message"])
		})
	}
}

func TestRespond_UnknownErrorBecomesOpaque(t *testing.T) {
	recorder, body := respond(t, errors.New("pgx: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	envelope := body["error"].(map[string]interface{})
	assert.Equal(t, "INTERNAL_ERROR", envelope["code"])
	assert.Equal(t, "internal server error", envelope["message"])
	assert.NotContains(t, recorder.Body.String(), "10.0.0.5")
}

func TestRespond_WrappedErrorKeepsCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("transaction not found"))

	recorder, body := respond(t, wrapped)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	envelope := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", envelope["code"])
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Database("query failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "underlying")
}
