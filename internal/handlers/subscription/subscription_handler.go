// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"

	"meterd-service/internal/domain/billing"
	"meterd-service/internal/middleware"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/pkg/response"
	service "meterd-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptions *service.Service
}

func NewSubscriptionHandler(subscriptions *service.Service) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// GetSubscription returns the caller's subscription, pending downgrade
// included.
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	sub, err := h.subscriptions.Get(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "no subscription found", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub.Info())
}

// ListPlans exposes the fixed plan catalog.
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	response.Success(c, http.StatusOK, "plans retrieved", billing.Plans())
}

// ChangePlan requests a move to another tier. Upgrades apply
// immediately; downgrades come back with the pending slot filled.
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	var req billing.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.subscriptions.RequestChange(c.Request.Context(), p.ID, req.Plan)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "unknown plan", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to change plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan change processed", sub.Info())
}

// CancelPendingDowngrade clears the pending downgrade. Safe to call
// with nothing pending.
func (h *SubscriptionHandler) CancelPendingDowngrade(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	sub, err := h.subscriptions.CancelPendingDowngrade(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to cancel downgrade", err)
		return
	}

	response.Success(c, http.StatusOK, "pending downgrade cancelled", sub.Info())
}
