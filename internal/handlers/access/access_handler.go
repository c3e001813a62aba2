// internal/handlers/access/access_handler.go
package access

import (
	"net/http"

	domain "meterd-service/internal/domain/access"
	"meterd-service/internal/middleware"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/pkg/response"
	service "meterd-service/internal/service/access"
	principalsvc "meterd-service/internal/service/principal"

	"github.com/gin-gonic/gin"
)

type AccessHandler struct {
	authority  *service.Authority
	principals principalsvc.PrincipalStore
}

func NewAccessHandler(authority *service.Authority, principals principalsvc.PrincipalStore) *AccessHandler {
	return &AccessHandler{
		authority:  authority,
		principals: principals,
	}
}

// CanAccessSection answers whether the caller may open a named admin
// section. A denial is a value, not an error; the UI renders it.
func (h *AccessHandler) CanAccessSection(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	section := c.Param("section")

	result := domain.CheckResponse{
		Allowed: h.authority.CanAccessSection(p, section),
		Check:   "section:" + section,
	}
	response.Success(c, http.StatusOK, "access check evaluated", result)
}

// Check evaluates a permission or action question for the caller.
func (h *AccessHandler) Check(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	var req domain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	var result domain.CheckResponse
	switch {
	case req.Action != "":
		var target *domain.Principal
		if req.TargetID != nil {
			t, err := h.principals.FindByID(c.Request.Context(), *req.TargetID)
			if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
				response.Error(c, http.StatusInternalServerError, "failed to load target principal", err)
				return
			}
			target = t
		}
		result = domain.CheckResponse{
			Allowed: h.authority.CanPerformAction(p, req.Action, target),
			Check:   "action:" + req.Action,
		}

	case len(req.Permissions) > 0:
		perms := make([]domain.Permission, 0, len(req.Permissions))
		for _, s := range req.Permissions {
			perms = append(perms, domain.ParsePermission(s))
		}
		result = domain.CheckResponse{
			Allowed: h.authority.HasAnyPermission(p, perms),
			Check:   "any_permission",
		}

	case req.Permission != "":
		result = domain.CheckResponse{
			Allowed: h.authority.HasPermission(p, domain.ParsePermission(req.Permission)),
			Check:   "permission:" + req.Permission,
		}

	default:
		response.Error(c, http.StatusBadRequest, "no check specified", nil)
		return
	}

	response.Success(c, http.StatusOK, "access check evaluated", result)
}
