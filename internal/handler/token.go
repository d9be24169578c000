package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/token"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenHandler exposes the rent currency: balances, the allowance a tenant
// grants the vault before paying rent, and an optional development faucet.
type TokenHandler struct {
	Token         *token.Token
	Guard         ledger.Guard
	Units         Units
	FaucetEnabled bool
	Logger        *zap.Logger
}

func NewTokenHandler(tok *token.Token, guard ledger.Guard, units Units, faucet bool, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHandler{Token: tok, Guard: guard, Units: units, FaucetEnabled: faucet, Logger: logger}
}

// Balance returns the balance of ?address=, or of the caller.
func (h *TokenHandler) Balance(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	addr, err := util.NormalizeAddress(c.DefaultQuery("address", user.Address))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid address")
		return
	}
	bal, err := h.Token.BalanceOf(c.Request.Context(), addr)
	if err != nil {
		h.internal(c, err)
		return
	}
	util.Success(c, util.Response{
		"address":         addr,
		"balance":         bal,
		"balance_display": h.Units.format(bal),
		"symbol":          h.Units.Symbol,
	})
}

// Allowance returns what the caller has approved the vault to spend.
func (h *TokenHandler) Allowance(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	al, err := h.Token.Allowance(c.Request.Context(), user.Address, h.Token.Vault())
	if err != nil {
		h.internal(c, err)
		return
	}
	util.Success(c, util.Response{
		"owner":             user.Address,
		"spender":           h.Token.Vault(),
		"allowance":         al,
		"allowance_display": h.Units.format(al),
	})
}

type approveReq struct {
	Amount string `json:"amount" binding:"required"`
}

// Approve sets the caller's allowance to the vault.
func (h *TokenHandler) Approve(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req approveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	amount, err := h.Units.parse(req.Amount)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid amount: "+err.Error())
		return
	}
	if err := h.Token.Approve(c.Request.Context(), user.Address, h.Token.Vault(), amount); err != nil {
		h.tokenError(c, err)
		return
	}
	util.Success(c, util.Response{
		"spender":           h.Token.Vault(),
		"allowance":         amount,
		"allowance_display": h.Units.format(amount),
	})
}

type mintReq struct {
	Address string `json:"address"`
	Amount  string `json:"amount" binding:"required"`
}

// Mint credits test funds. Owner only, and only when the faucet is enabled.
func (h *TokenHandler) Mint(c *gin.Context) {
	if !h.FaucetEnabled {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "faucet is disabled")
		return
	}
	user, ok := requireOwner(c, h.Guard)
	if !ok {
		return
	}
	var req mintReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	to := req.Address
	if to == "" {
		to = user.Address
	}
	amount, err := h.Units.parse(req.Amount)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid amount: "+err.Error())
		return
	}
	tr, err := h.Token.Mint(c.Request.Context(), to, amount)
	if err != nil {
		h.tokenError(c, err)
		return
	}
	h.Logger.Info("faucet mint", zap.String("to", to), zap.Int64("amount", amount), zap.String("reference", tr.Reference))
	util.Success(c, util.Response{
		"reference":      tr.Reference,
		"amount":         amount,
		"amount_display": h.Units.format(amount),
	})
}

// Transfers lists the caller's token movements, newest first.
func (h *TokenHandler) Transfers(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.Token.Transfers(c.Request.Context(), user.Address, limit)
	if err != nil {
		h.internal(c, err)
		return
	}
	items := make([]gin.H, 0, len(list))
	for i := range list {
		t := &list[i]
		items = append(items, gin.H{
			"reference":      t.Reference,
			"from":           t.From,
			"to":             t.To,
			"amount":         t.Amount,
			"amount_display": h.Units.format(t.Amount),
			"created_at":     t.CreatedAt,
		})
	}
	util.Success(c, util.Response{"items": items})
}

func (h *TokenHandler) tokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidAmount), errors.Is(err, util.ErrInvalidAddress):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	default:
		h.internal(c, err)
	}
}

func (h *TokenHandler) internal(c *gin.Context, err error) {
	_ = c.Error(err)
	util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "token operation failed")
}
