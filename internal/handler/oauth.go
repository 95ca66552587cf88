package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
)

type OAuthHandler struct {
	svc *service.OAuthService
}

func NewOAuthHandler(svc *service.OAuthService) *OAuthHandler {
	return &OAuthHandler{svc: svc}
}

// Callback godoc
// @Summary Complete a federated login
// @Description Exchanges the provider's authorization code and issues our own token pair.
// @Tags oauth
// @Accept json
// @Produce json
// @Param provider path string true "Provider name (github, oidc)"
// @Param request body model.OAuthCallbackRequest false "Authorization code"
// @Param code query string false "Authorization code"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /auth/oauth/{provider}/callback [post]
func (h *OAuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		var req model.OAuthCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
			return
		}
		code = req.Code
	}

	user, pair, err := h.svc.Callback(c.Request.Context(), c.Param("provider"), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, user))
}
