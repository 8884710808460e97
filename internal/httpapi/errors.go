package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is a client-facing error with a stable code. Message is a safe
// summary; the wrapped cause stays in the logs and never reaches the body.
type Error struct {
	Code    string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Error taxonomy: each kind maps to one HTTP status.
func Validation(message string) *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: message, Status: http.StatusUnprocessableEntity}
}

func Transaction(message string) *Error {
	return &Error{Code: "TRANSACTION_ERROR", Message: message, Status: http.StatusBadRequest}
}

func NotFound(message string) *Error {
	return &Error{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func Conflict(message string) *Error {
	return &Error{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

func Authentication(message string) *Error {
	return &Error{Code: "AUTHENTICATION_ERROR", Message: message, Status: http.StatusUnauthorized}
}

func Scoring(message string, cause error) *Error {
	return &Error{Code: "SCORING_ERROR", Message: message, Status: http.StatusInternalServerError, cause: cause}
}

func Database(message string, cause error) *Error {
	return &Error{Code: "DATABASE_ERROR", Message: message, Status: http.StatusInternalServerError, cause: cause}
}

func Kafka(message string, cause error) *Error {
	return &Error{Code: "KAFKA_ERROR", Message: message, Status: http.StatusServiceUnavailable, cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Code: "INTERNAL_ERROR", Message: "internal server error", Status: http.StatusInternalServerError, cause: cause}
}

// Respond writes the error envelope. Unrecognized errors become opaque
// internal errors so no stack detail leaks.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}

	c.JSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":       apiErr.Code,
			"message":    apiErr.Message,
			"request_id": c.GetString("request_id"),
		},
	})
}
