package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/logger"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeConflict         ErrorCode = "conflict"
	errCodeWindowExpired    ErrorCode = "window_expired"
	errCodeInvalidProof     ErrorCode = "invalid_proof"

	// Server errors (5xx)
	errCodeInternalError ErrorCode = "internal_error"
	errCodePayoutFailed  ErrorCode = "payout_failed"
	errCodeBusy          ErrorCode = "busy"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message, details...)
}

// respondValidationError sends a 400 Bad Request with validation error
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, http.StatusBadRequest, errCodeValidationFailed, "Validation failed", details)
}

// respondInternalError sends a 500 Internal Server Error response and logs the error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.Error(err, fields...)
	respondWithError(c, http.StatusInternalServerError, errCodeInternalError, message)
}

// respondDomainError maps ledger error classes onto HTTP responses. Validation
// and state-conflict outcomes are client-visible; integrity errors are
// deliberately opaque.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case isAny(err, domain.ErrInvalidAmount, domain.ErrInvalidSchedule):
		respondValidationError(c, err.Error())
	case isAny(err, domain.ErrNotFound):
		respondNotFound(c, err.Error())
	case isAny(err, domain.ErrInvalidProof):
		respondWithError(c, http.StatusUnprocessableEntity, errCodeInvalidProof, err.Error())
	case isAny(err, domain.ErrExpiredWindow):
		respondWithError(c, http.StatusGone, errCodeWindowExpired, err.Error())
	case isAny(err, domain.ErrDuplicateSchedule, domain.ErrAlreadySettled, domain.ErrAlreadyClaimed,
		domain.ErrAlreadyRevoked, domain.ErrNotRevocable, domain.ErrNothingToClaim,
		domain.ErrNotExpired, domain.ErrDistributionClosed):
		respondWithError(c, http.StatusConflict, errCodeConflict, err.Error())
	case isAny(err, domain.ErrPayoutFailed):
		respondWithError(c, http.StatusBadGateway, errCodePayoutFailed, err.Error())
	case isAny(err, domain.ErrLockTimeout):
		respondWithError(c, http.StatusServiceUnavailable, errCodeBusy, err.Error())
	default:
		respondInternalError(c, err, "Internal error")
	}
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
