package handler

import (
	"net/http"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
)

// PropertyHandler exposes record creation, lookup, rent payment and savings
// withdrawal. The caller is always the logged-in user's wallet address.
type PropertyHandler struct {
	Ledger *ledger.Service
	Units  Units
}

func NewPropertyHandler(svc *ledger.Service, units Units) *PropertyHandler {
	return &PropertyHandler{Ledger: svc, Units: units}
}

type createPropertyReq struct {
	Tenant         string `json:"tenant" binding:"required"`
	RoomLabel      string `json:"room_label" binding:"required"`
	RentAmount     string `json:"rent_amount" binding:"required"` // decimal, e.g. "100.50"
	SavingsPercent *int   `json:"savings_percent" binding:"required"`
	SavingsGoal    string `json:"savings_goal"`
}

func (h *PropertyHandler) CreateProperty(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req createPropertyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	rent, err := h.Units.parse(req.RentAmount)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid rent_amount: "+err.Error())
		return
	}
	var goal int64
	if req.SavingsGoal != "" {
		goal, err = h.Units.parse(req.SavingsGoal)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid savings_goal: "+err.Error())
			return
		}
	}

	p, err := h.Ledger.CreateRecord(c.Request.Context(), user.Address, ledger.CreateParams{
		Tenant:         req.Tenant,
		RoomLabel:      req.RoomLabel,
		RentAmount:     rent,
		SavingsPercent: *req.SavingsPercent,
		SavingsGoal:    goal,
	})
	if err != nil {
		ledgerError(c, err)
		return
	}

	util.Success(c, util.Response{"property": h.Units.property(p)})
}

func (h *PropertyHandler) CountProperties(c *gin.Context) {
	n, err := h.Ledger.GetRecordCount(c.Request.Context())
	if err != nil {
		ledgerError(c, err)
		return
	}
	util.Success(c, util.Response{"count": n})
}

func (h *PropertyHandler) ListProperties(c *gin.Context) {
	list, err := h.Ledger.ListRecords(c.Request.Context())
	if err != nil {
		ledgerError(c, err)
		return
	}
	items := make([]gin.H, 0, len(list))
	for i := range list {
		items = append(items, h.Units.property(&list[i]))
	}
	util.Success(c, util.Response{"items": items, "total": len(items)})
}

func (h *PropertyHandler) GetProperty(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.Ledger.GetRecord(c.Request.Context(), id)
	if err != nil {
		ledgerError(c, err)
		return
	}
	util.Success(c, util.Response{"property": h.Units.property(p)})
}

// MyProperty returns the record rented by the caller.
func (h *PropertyHandler) MyProperty(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	p, err := h.Ledger.RecordOf(c.Request.Context(), user.Address)
	if err != nil {
		ledgerError(c, err)
		return
	}
	util.Success(c, util.Response{"property": h.Units.property(p)})
}

func (h *PropertyHandler) PayRent(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	fact, err := h.Ledger.PayRent(c.Request.Context(), user.Address, id)
	if err != nil {
		ledgerError(c, err)
		return
	}

	resp := util.Response{"payment": h.Units.payment(fact)}
	if p, err := h.Ledger.GetRecord(c.Request.Context(), id); err == nil {
		resp["property"] = h.Units.property(p)
	}
	util.Success(c, resp)
}

func (h *PropertyHandler) WithdrawSavings(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	fact, err := h.Ledger.WithdrawSavings(c.Request.Context(), user.Address, id)
	if err != nil {
		ledgerError(c, err)
		return
	}
	util.Success(c, util.Response{"withdrawal": h.Units.withdrawal(fact)})
}
