// internal/handlers/usage/usage_handler.go
package usage

import (
	"net/http"

	"meterd-service/internal/domain/billing"
	"meterd-service/internal/middleware"
	"meterd-service/internal/pkg/response"
	"meterd-service/internal/service/overage"
	"meterd-service/internal/service/usage"

	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	meter  *usage.Meter
	ledger *overage.Ledger
}

func NewUsageHandler(meter *usage.Meter, ledger *overage.Ledger) *UsageHandler {
	return &UsageHandler{
		meter:  meter,
		ledger: ledger,
	}
}

// GetUsage returns the caller's meter read-out plus the overage total
// the next invoice will carry.
func (h *UsageHandler) GetUsage(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	info, err := h.meter.Usage(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to read usage", err)
		return
	}

	pending, err := h.ledger.PendingTotal(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to read pending overage", err)
		return
	}
	info.PendingOverage = pending

	response.Success(c, http.StatusOK, "usage retrieved", info)
}

// Authorize clears units of billable work for the caller. Quota
// denials ride the envelope as decisions; only infrastructure failures
// become HTTP errors, so the UI can tell "limit reached" apart from
// "try again".
func (h *UsageHandler) Authorize(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	var req billing.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	decision, err := h.ledger.Authorize(c.Request.Context(), p.ID, req.Units, req.OverageConsent)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to authorize usage", err)
		return
	}

	if !decision.Allowed {
		response.Success(c, http.StatusOK, "usage denied", decision)
		return
	}
	response.Success(c, http.StatusOK, "usage authorized", decision)
}
