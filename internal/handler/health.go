package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
)

const serviceName = "auth-service"

// Ping godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} model.PingResponse
// @Router /ping [get]
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, model.PingResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
	})
}
