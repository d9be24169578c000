package handler

import (
	"net/http"

	"github.com/StewieC/DApp-PropertyVault/internal/events"
	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
)

// HistoryHandler serves the fact logs and the tenant and owner views over them.
type HistoryHandler struct {
	Ledger *ledger.Service
	Events *events.Publisher // nil when no stream is configured
	Units  Units
}

func NewHistoryHandler(svc *ledger.Service, pub *events.Publisher, units Units) *HistoryHandler {
	return &HistoryHandler{Ledger: svc, Events: pub, Units: units}
}

// ListPayments returns payment facts in emission order.
func (h *HistoryHandler) ListPayments(c *gin.Context) {
	pid, ok := optionalPropertyID(c)
	if !ok {
		return
	}
	facts, err := h.Ledger.ListPaymentFacts(c.Request.Context(), pid)
	if err != nil {
		ledgerError(c, err)
		return
	}
	items := make([]gin.H, 0, len(facts))
	for i := range facts {
		items = append(items, h.Units.payment(&facts[i]))
	}
	util.Success(c, util.Response{"items": items, "total": len(items)})
}

// ListWithdrawals returns withdrawal facts in emission order.
func (h *HistoryHandler) ListWithdrawals(c *gin.Context) {
	pid, ok := optionalPropertyID(c)
	if !ok {
		return
	}
	facts, err := h.Ledger.ListWithdrawalFacts(c.Request.Context(), pid)
	if err != nil {
		ledgerError(c, err)
		return
	}
	items := make([]gin.H, 0, len(facts))
	for i := range facts {
		items = append(items, h.Units.withdrawal(&facts[i]))
	}
	util.Success(c, util.Response{"items": items, "total": len(items)})
}

// TenantHistory returns the caller's room and its payments, newest first.
func (h *HistoryHandler) TenantHistory(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	p, facts, err := h.Ledger.TenantView(c.Request.Context(), user.Address)
	if err != nil {
		ledgerError(c, err)
		return
	}
	items := make([]gin.H, 0, len(facts))
	for i := range facts {
		items = append(items, h.Units.payment(&facts[i]))
	}
	util.Success(c, util.Response{
		"property": h.Units.property(p),
		"items":    items,
		"totals":   h.Units.totals(ledger.Summarize(facts)),
	})
}

// OwnerHistory returns every payment, newest first, with room and tenant.
func (h *HistoryHandler) OwnerHistory(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	entries, err := h.Ledger.OwnerView(c.Request.Context(), user.Address)
	if err != nil {
		ledgerError(c, err)
		return
	}
	items := make([]gin.H, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		item := h.Units.payment(&e.PaymentFact)
		item["room_label"] = e.RoomLabel
		item["tenant"] = e.Tenant
		items = append(items, item)
	}
	util.Success(c, util.Response{
		"items":  items,
		"totals": h.Units.totals(ledger.Summarize(ledger.PaymentsOf(entries))),
	})
}

// RecentEvents lists the newest entries of the fact stream. Owner only.
func (h *HistoryHandler) RecentEvents(c *gin.Context) {
	if _, ok := requireOwner(c, h.Ledger.Guard()); !ok {
		return
	}
	if h.Events == nil {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "event stream is not configured")
		return
	}
	msgs, err := h.Events.Recent(c.Request.Context(), 50)
	if err != nil {
		_ = c.Error(err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to read event stream")
		return
	}
	util.Success(c, util.Response{"items": msgs})
}
