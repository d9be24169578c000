package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/middleware"
	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
)

// Roles reported by /api/me.
const (
	RoleOwner  = "owner"
	RoleTenant = "tenant"
)

// Units renders base-unit amounts in the rent currency.
type Units struct {
	Decimals int32
	Symbol   string
}

func (u Units) format(amount int64) string {
	return util.FormatUnits(amount, u.Decimals)
}

func (u Units) parse(s string) (int64, error) {
	return util.ParseUnits(s, u.Decimals)
}

// requireUser fetches the logged-in user or writes 401.
func requireUser(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
		return nil, false
	}
	return user, true
}

// requireOwner fetches the logged-in user and checks it is the vault owner.
func requireOwner(c *gin.Context, guard ledger.Guard) (*models.User, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	if !guard.IsOwner(user.Address) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "owner only")
		return nil, false
	}
	return user, true
}

func roleOf(guard ledger.Guard, addr string) string {
	if guard.IsOwner(addr) {
		return RoleOwner
	}
	return RoleTenant
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid property id")
		return 0, false
	}
	return id, true
}

// optionalPropertyID reads ?property_id=; absent means all records.
func optionalPropertyID(c *gin.Context) (*uint64, bool) {
	raw := c.Query("property_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid property_id")
		return nil, false
	}
	return &id, true
}

// ledgerError maps ledger errors onto HTTP status and business code.
func ledgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		util.Error(c, http.StatusForbidden, util.CodeForbidden, err.Error())
	case errors.Is(err, ledger.ErrTransferFailed):
		util.Error(c, http.StatusPaymentRequired, util.CodeTransferFailed, err.Error())
	case errors.Is(err, ledger.ErrNothingToWithdraw):
		util.Error(c, http.StatusConflict, util.CodeNothingToDo, err.Error())
	default:
		_ = c.Error(err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "internal error")
	}
}

func (u Units) property(p *models.Property) gin.H {
	return gin.H{
		"id":                    p.ID,
		"tenant":                p.Tenant,
		"room_label":            p.RoomLabel,
		"rent_amount":           p.RentAmount,
		"rent_amount_display":   u.format(p.RentAmount),
		"savings_percent":       p.SavingsPercent,
		"total_saved":           p.TotalSaved,
		"total_saved_display":   u.format(p.TotalSaved),
		"savings_goal":          p.SavingsGoal,
		"savings_goal_display":  u.format(p.SavingsGoal),
		"goal_progress_percent": p.GoalProgress(),
		"created_at":            p.CreatedAt,
	}
}

func (u Units) payment(f *models.PaymentFact) gin.H {
	return gin.H{
		"seq":                     f.Seq,
		"property_id":             f.PropertyID,
		"payer":                   f.Payer,
		"amount":                  f.Amount,
		"amount_display":          u.format(f.Amount),
		"saved_for_owner":         f.SavedForOwner,
		"saved_for_owner_display": u.format(f.SavedForOwner),
		"owner_portion":           f.OwnerPortion,
		"owner_portion_display":   u.format(f.OwnerPortion),
		"timestamp":               f.Timestamp,
		"reference":               f.Reference,
	}
}

func (u Units) withdrawal(f *models.WithdrawalFact) gin.H {
	return gin.H{
		"seq":            f.Seq,
		"property_id":    f.PropertyID,
		"owner":          f.Owner,
		"amount":         f.Amount,
		"amount_display": u.format(f.Amount),
		"timestamp":      f.Timestamp,
		"reference":      f.Reference,
	}
}

func (u Units) totals(t ledger.Totals) gin.H {
	return gin.H{
		"payments":          t.Payments,
		"paid":              t.Paid,
		"paid_display":      u.format(t.Paid),
		"saved":             t.Saved,
		"saved_display":     u.format(t.Saved),
		"forwarded":         t.Forwarded,
		"forwarded_display": u.format(t.Forwarded),
		"symbol":            u.Symbol,
	}
}
