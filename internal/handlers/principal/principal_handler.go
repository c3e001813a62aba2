// internal/handlers/principal/principal_handler.go
package principal

import (
	"context"
	"net/http"
	"strconv"

	domain "meterd-service/internal/domain/access"
	"meterd-service/internal/middleware"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/pkg/response"
	service "meterd-service/internal/service/principal"

	"github.com/gin-gonic/gin"
)

type PrincipalHandler struct {
	principals *service.Service
}

func NewPrincipalHandler(principals *service.Service) *PrincipalHandler {
	return &PrincipalHandler{principals: principals}
}

// List returns every principal for the admin roles page.
func (h *PrincipalHandler) List(c *gin.Context) {
	actor := middleware.MustPrincipal(c)

	infos, err := h.principals.List(c.Request.Context(), actor)
	if err != nil {
		h.serviceError(c, err, "failed to list principals")
		return
	}

	response.Success(c, http.StatusOK, "principals retrieved", infos)
}

// Create provisions a new admin credential.
func (h *PrincipalHandler) Create(c *gin.Context) {
	actor := middleware.MustPrincipal(c)

	var req domain.CreatePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.principals.Create(c.Request.Context(), actor, &req)
	if err != nil {
		h.serviceError(c, err, "failed to create principal")
		return
	}

	response.Success(c, http.StatusCreated, "principal created", p.Info())
}

// ChangeRole mutates the target's role.
func (h *PrincipalHandler) ChangeRole(c *gin.Context) {
	actor := middleware.MustPrincipal(c)

	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid principal ID", err)
		return
	}

	var req domain.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.principals.ChangeRole(c.Request.Context(), actor, targetID, req.Role)
	if err != nil {
		h.serviceError(c, err, "failed to change role")
		return
	}

	response.Success(c, http.StatusOK, "role changed", p.Info())
}

// GrantPermission adds one explicit permission to the target.
func (h *PrincipalHandler) GrantPermission(c *gin.Context) {
	h.mutatePermission(c, h.principals.GrantPermission, "permission granted")
}

// RevokePermission removes one explicit permission from the target.
func (h *PrincipalHandler) RevokePermission(c *gin.Context) {
	h.mutatePermission(c, h.principals.RevokePermission, "permission revoked")
}

// Deactivate suspends the target principal.
func (h *PrincipalHandler) Deactivate(c *gin.Context) {
	actor := middleware.MustPrincipal(c)

	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid principal ID", err)
		return
	}

	if err := h.principals.Deactivate(c.Request.Context(), actor, targetID); err != nil {
		h.serviceError(c, err, "failed to deactivate principal")
		return
	}

	response.Success(c, http.StatusOK, "principal deactivated", nil)
}

func (h *PrincipalHandler) mutatePermission(
	c *gin.Context,
	mutate func(ctx context.Context, actor *domain.Principal, targetID int64, permission string) (*domain.Principal, error),
	message string,
) {
	actor := middleware.MustPrincipal(c)

	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid principal ID", err)
		return
	}

	var req domain.PermissionGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := mutate(c.Request.Context(), actor, targetID, req.Permission)
	if err != nil {
		h.serviceError(c, err, "failed to update permissions")
		return
	}

	response.Success(c, http.StatusOK, message, p.Info())
}

func (h *PrincipalHandler) serviceError(c *gin.Context, err error, message string) {
	switch {
	case xerrors.Is(err, xerrors.ErrForbidden):
		response.Forbidden(c, "insufficient permissions")
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "principal not found")
	case xerrors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, "principal already exists", err)
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, message, err)
	default:
		response.Error(c, http.StatusInternalServerError, message, err)
	}
}
