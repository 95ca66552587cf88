package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/kube-rca/auth-service/internal/token"
	"github.com/sirupsen/logrus"
)

const principalKey = "auth_principal"

// AuthMiddleware verifies the bearer token and stores the principal on the
// context. Requests without a valid, unrevoked token are rejected.
func AuthMiddleware(guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := guard.AuthenticateHeader(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.Authorize(GetPrincipal(c), role); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) *model.Principal {
	if value, ok := c.Get(principalKey); ok {
		if principal, ok := value.(*model.Principal); ok {
			return principal
		}
	}
	return nil
}

func parseBearer(c *gin.Context) (string, error) {
	return token.ParseBearer(c.GetHeader("Authorization"))
}

// RequestLogger logs one line per request.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if principal := GetPrincipal(c); principal != nil {
			entry = entry.WithField("user_id", principal.UserID)
		}
		if c.Writer.Status() >= 500 {
			entry.Warn("request completed")
			return
		}
		entry.Debug("request completed")
	}
}
