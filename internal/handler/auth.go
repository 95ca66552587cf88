package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	svc   *service.AuthService
	guard *service.Guard
}

func NewAuthHandler(svc *service.AuthService, guard *service.Guard) *AuthHandler {
	return &AuthHandler{svc: svc, guard: guard}
}

// Register godoc
// @Summary Register a new user
// @Description Username may be omitted to have one generated from prefix and style.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Sign-up data"
// @Success 201 {object} model.UserResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Prefix:   req.Prefix,
		Style:    req.Style,
		Profile: model.Profile{
			DisplayName: req.DisplayName,
			Phone:       req.Phone,
			Gender:      req.Gender,
			BirthDate:   req.BirthDate,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewUserResponse(user))
}

// Login godoc
// @Summary Login
// @Description Accepts a username or, when it contains '@', an email address.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Credentials"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, user))
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description The presented refresh token is consumed; reusing it fails.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Refresh token"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	pair, err := h.svc.RotateRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, nil))
}

// Logout godoc
// @Summary Logout
// @Description Revokes the refresh token in the body and, when a valid bearer token is sent, denylists it.
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} model.MessageResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.RefreshRequest
	// The body is optional.
	_ = c.ShouldBindJSON(&req)

	var principal *model.Principal
	if header := c.GetHeader("Authorization"); header != "" {
		var err error
		principal, err = h.guard.AuthenticateHeader(c.Request.Context(), header)
		if err != nil && !service.IsAuthFailure(err) {
			logrus.WithError(err).Warn("could not check access token on logout")
		}
	}

	h.svc.Logout(c.Request.Context(), principal, req.RefreshToken)
	c.JSON(http.StatusOK, model.MessageResponse{Message: "logged out"})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UserResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal := GetPrincipal(c)
	if principal == nil {
		writeError(c, service.ErrMissingAuthorization)
		return
	}

	user, err := h.svc.Me(c.Request.Context(), principal.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user))
}

// Validate godoc
// @Summary Validate an access token
// @Description For other services. Never reveals why a token was rejected.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ValidateResponse
// @Failure 401 {object} model.ValidateResponse
// @Router /auth/validate [post]
func (h *AuthHandler) Validate(c *gin.Context) {
	raw, err := parseBearer(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ValidateResponse{Valid: false})
		return
	}

	v := h.guard.Validate(c.Request.Context(), raw)
	if !v.Valid {
		c.JSON(http.StatusUnauthorized, model.ValidateResponse{Valid: false})
		return
	}
	c.JSON(http.StatusOK, model.ValidateResponse{Valid: true, UserID: v.UserID, Roles: v.Roles})
}

func tokenResponse(pair model.TokenPair, user *model.User) model.TokenResponse {
	return model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		User:         model.NewUserResponse(user),
	}
}
