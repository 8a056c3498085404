package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/middleware"
)

// respondError writes the structured error body for err
func (s *Server) respondError(c *gin.Context, err error) {
	status, code, details := classifyError(err)

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":         status,
			"code":           code,
			"correlation_id": c.GetString(middleware.CorrelationKey),
		}).Error("Request failed")
	}

	s.abort(c, status, code, err.Error(), details)
}

func (s *Server) abort(c *gin.Context, status int, code, message string, details interface{}) {
	_ = c.Error(errors.New(message))
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationKey)))
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.abort(c, http.StatusBadRequest, domain.ErrBadRequest, "malformed request body: "+err.Error(), nil)
}

// classifyError maps typed pipeline errors to HTTP status and error code
func classifyError(err error) (int, string, interface{}) {
	var (
		invalid  *domain.InvalidInputError
		unknown  *domain.UnknownDomainError
		loadErr  *domain.ModelLoadError
		shape    *domain.ShapeMismatchError
		tooLarge *domain.BatchTooLargeError
		pre      *domain.PreconditionError
		fieldErr *domain.ValidationError
	)

	switch {
	case errors.As(err, &invalid):
		var details interface{}
		if invalid.Result != nil {
			details = invalid.Result
		}
		return http.StatusUnprocessableEntity, domain.ErrInvalidInput, details
	case errors.As(err, &fieldErr):
		return http.StatusUnprocessableEntity, domain.ErrInvalidInput, fieldErr
	case errors.As(err, &unknown):
		return http.StatusNotFound, domain.ErrUnknownDomain, nil
	case errors.As(err, &loadErr), errors.As(err, &shape):
		return http.StatusServiceUnavailable, domain.ErrDomainUnavailable, nil
	case errors.As(err, &tooLarge), errors.As(err, &pre):
		return http.StatusBadRequest, domain.ErrBadRequest, nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrTimeout, nil
	default:
		return http.StatusInternalServerError, domain.ErrInternalServer, nil
	}
}
