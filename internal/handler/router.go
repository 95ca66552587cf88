package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	Auth  *AuthHandler
	Admin *AdminHandler
	OAuth *OAuthHandler
	Guard *service.Guard
}

// NewRouter wires every route. OAuth routes are skipped when h.OAuth is nil.
func NewRouter(h Handlers, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.GET("/ping", Ping)

	auth := r.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.POST("/validate", h.Auth.Validate)
	auth.GET("/me", AuthMiddleware(h.Guard), h.Auth.Me)

	if h.OAuth != nil {
		auth.POST("/oauth/:provider/callback", h.OAuth.Callback)
		auth.GET("/oauth/:provider/callback", h.OAuth.Callback)
	}

	admin := r.Group("/admin", AuthMiddleware(h.Guard), RequireRole(service.RoleAdmin))
	admin.GET("/roles", h.Admin.ListRoles)
	admin.POST("/roles", h.Admin.CreateRole)
	admin.PUT("/roles/:id/permissions", h.Admin.SetRolePermissions)
	admin.GET("/permissions", h.Admin.ListPermissions)
	admin.POST("/permissions", h.Admin.CreatePermission)
	admin.PUT("/users/:id/roles", h.Admin.SetUserRoles)

	return r
}
