// internal/handlers/billing/charge_handler.go
package billing

import (
	"net/http"

	"meterd-service/internal/middleware"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/pkg/response"
	"meterd-service/internal/service/access"
	"meterd-service/internal/service/overage"

	"github.com/gin-gonic/gin"
)

type ChargeHandler struct {
	ledger    *overage.Ledger
	authority *access.Authority
}

func NewChargeHandler(ledger *overage.Ledger, authority *access.Authority) *ChargeHandler {
	return &ChargeHandler{
		ledger:    ledger,
		authority: authority,
	}
}

// ListCharges returns the caller's overage ledger.
func (h *ChargeHandler) ListCharges(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	charges, err := h.ledger.ListCharges(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list charges", err)
		return
	}

	response.Success(c, http.StatusOK, "charges retrieved", charges)
}

// GetSummary returns the caller's pending/processed/failed totals.
func (h *ChargeHandler) GetSummary(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	summary, err := h.ledger.Summary(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to summarize charges", err)
		return
	}

	response.Success(c, http.StatusOK, "charge summary retrieved", summary)
}

// GetDunningRate exposes recovered / total failed for the billing
// dashboard. The metric spans all principals, so it sits behind the
// billing permission.
func (h *ChargeHandler) GetDunningRate(c *gin.Context) {
	if !h.canManageBilling(c) {
		return
	}

	rate, err := h.ledger.DunningRecoveryRate(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to compute dunning rate", err)
		return
	}

	response.Success(c, http.StatusOK, "dunning recovery rate", gin.H{"recovery_rate": rate})
}

type settleRequest struct {
	Reason string `json:"reason,omitempty"`
}

// MarkProcessed is the billing processor's success callback. Status
// transitions belong to the billing collaborator, never to the charge's
// owner; all three callbacks require the billing permission.
func (h *ChargeHandler) MarkProcessed(c *gin.Context) {
	if !h.canManageBilling(c) {
		return
	}

	if err := h.ledger.MarkProcessed(c.Request.Context(), c.Param("reference")); err != nil {
		h.settleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "charge marked processed", nil)
}

// MarkFailed is the billing processor's failure callback. Retrying is
// the processor's job.
func (h *ChargeHandler) MarkFailed(c *gin.Context) {
	if !h.canManageBilling(c) {
		return
	}

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.ledger.MarkFailed(c.Request.Context(), c.Param("reference"), req.Reason); err != nil {
		h.settleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "charge marked failed", nil)
}

// MarkRecovered records a successful dunning retry.
func (h *ChargeHandler) MarkRecovered(c *gin.Context) {
	if !h.canManageBilling(c) {
		return
	}

	if err := h.ledger.MarkRecovered(c.Request.Context(), c.Param("reference")); err != nil {
		h.settleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "charge marked recovered", nil)
}

func (h *ChargeHandler) canManageBilling(c *gin.Context) bool {
	p := middleware.MustPrincipal(c)
	if !h.authority.CanPerformAction(p, "manage_billing", nil) {
		response.Forbidden(c, "insufficient permissions")
		return false
	}
	return true
}

func (h *ChargeHandler) settleError(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.Error(c, http.StatusNotFound, "charge not found", err)
	case xerrors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, "charge is not in the required status", err)
	default:
		response.Error(c, http.StatusInternalServerError, "failed to update charge", err)
	}
}
