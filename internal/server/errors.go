package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/logging"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code      string `json:"code"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

const (
	codeBadRequest  = "BAD_REQUEST"
	codeSchema      = "SCHEMA_ERROR"
	codeTooLarge    = "REQUEST_TOO_LARGE"
	codeRateLimited = "RATE_LIMITED"
	codeGeneration  = "INSIGHT_GENERATION_FAILED"
	codeMalformed   = "MALFORMED_INSIGHT"
	codeUnsupported = "UNSUPPORTED_FORMAT"
	codeCanceled    = "CANCELED"
	codeInternal    = "INTERNAL_ERROR"
)

func respondWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message})
}

// respondWithPipelineError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondWithPipelineError(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := logging.SanitizeError(err)
	if status >= 500 {
		s.logger.Error("pipeline failed", zap.String("code", code), zap.String("error", msg))
	} else {
		s.logger.Warn("pipeline rejected request", zap.String("code", code), zap.String("error", msg))
	}
	body := APIError{Code: code, Message: msg, Retryable: apperrors.IsRetryable(err)}
	if stage := apperrors.StageOf(err); stage != "unknown" {
		body.Stage = stage
	}
	c.AbortWithStatusJSON(status, body)
}

func statusOf(err error) (int, string) {
	var (
		schema    *apperrors.SchemaError
		tooLarge  *apperrors.RequestTooLargeError
		limited   *apperrors.RateLimitExceededError
		gen       *apperrors.InsightGenerationError
		malformed *apperrors.MalformedInsightError
	)
	switch {
	case errors.As(err, &schema):
		return http.StatusUnprocessableEntity, codeSchema
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, codeTooLarge
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.As(err, &gen):
		if gen.Transient {
			return http.StatusServiceUnavailable, codeGeneration
		}
		return http.StatusBadGateway, codeGeneration
	case errors.As(err, &malformed):
		return http.StatusBadGateway, codeMalformed
	case errors.Is(err, dataset.ErrUnsupported):
		return http.StatusUnsupportedMediaType, codeUnsupported
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeCanceled
	}
	return http.StatusInternalServerError, codeInternal
}
