package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/sirupsen/logrus"
)

// writeError maps service errors onto HTTP statuses. Authentication failures
// get fixed messages; the underlying reason stays in the logs.
func writeError(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, model.ErrorResponse{Error: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUnknownPermission), errors.Is(err, service.ErrUnknownRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrTokenMalformed):
		return http.StatusUnprocessableEntity, "malformed token"
	case service.IsAuthFailure(err):
		return http.StatusUnauthorized, authFailureMessage(err)
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "server error"
	}
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return "invalid refresh token"
	case errors.Is(err, service.ErrMissingAuthorization):
		return "authorization required"
	case errors.Is(err, service.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, service.ErrTokenInvalid):
		return "invalid token"
	default:
		return "invalid credentials"
	}
}
