package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
)

// AdminHandler exposes the role/permission registry. The registry itself
// enforces the admin role.
type AdminHandler struct {
	registry *service.Registry
}

func NewAdminHandler(registry *service.Registry) *AdminHandler {
	return &AdminHandler{registry: registry}
}

// ListRoles godoc
// @Summary List roles with their permissions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Role
// @Failure 403 {object} model.ErrorResponse
// @Router /admin/roles [get]
func (h *AdminHandler) ListRoles(c *gin.Context) {
	roles, err := h.registry.ListRoles(c.Request.Context(), GetPrincipal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if roles == nil {
		roles = []model.Role{}
	}
	c.JSON(http.StatusOK, roles)
}

// CreateRole godoc
// @Summary Create a role
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreateRoleRequest true "Role"
// @Success 201 {object} model.Role
// @Failure 409 {object} model.ErrorResponse
// @Router /admin/roles [post]
func (h *AdminHandler) CreateRole(c *gin.Context) {
	var req model.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	role, err := h.registry.CreateRole(c.Request.Context(), GetPrincipal(c), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// ListPermissions godoc
// @Summary List permissions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Permission
// @Router /admin/permissions [get]
func (h *AdminHandler) ListPermissions(c *gin.Context) {
	perms, err := h.registry.ListPermissions(c.Request.Context(), GetPrincipal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if perms == nil {
		perms = []model.Permission{}
	}
	c.JSON(http.StatusOK, perms)
}

// CreatePermission godoc
// @Summary Create a permission
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreatePermissionRequest true "Permission"
// @Success 201 {object} model.Permission
// @Router /admin/permissions [post]
func (h *AdminHandler) CreatePermission(c *gin.Context) {
	var req model.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	perm, err := h.registry.CreatePermission(c.Request.Context(), GetPrincipal(c), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, perm)
}

// SetRolePermissions godoc
// @Summary Replace a role's permissions
// @Description All-or-nothing: one unknown permission leaves the role unchanged.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param request body model.RolePermissionsRequest true "Permission names"
// @Success 200 {object} model.Role
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /admin/roles/{id}/permissions [put]
func (h *AdminHandler) SetRolePermissions(c *gin.Context) {
	roleID, ok := pathID(c)
	if !ok {
		return
	}
	var req model.RolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	role, err := h.registry.SetRolePermissions(c.Request.Context(), GetPrincipal(c), roleID, req.Permissions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// SetUserRoles godoc
// @Summary Replace a user's roles
// @Description Takes effect for tokens issued afterwards.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body model.UserRolesRequest true "Role names"
// @Success 200 {object} model.UserResponse
// @Router /admin/users/{id}/roles [put]
func (h *AdminHandler) SetUserRoles(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req model.UserRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	user, err := h.registry.SetUserRoles(c.Request.Context(), GetPrincipal(c), userID, req.Roles)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user))
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}
