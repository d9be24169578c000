package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/middleware"
	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 10 * time.Minute
	challengeTTL    = 10 * time.Minute
)

var errChallengeUsed = errors.New("challenge already used")

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// AuthHandler handles registration, login and sessions. A user is bound to
// one wallet address, which becomes the caller identity on the ledger.
type AuthHandler struct {
	DB         *gorm.DB
	Ledger     *ledger.Service
	JWTSecret  string
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
	Logger     *zap.Logger
}

func NewAuthHandler(db *gorm.DB, svc *ledger.Service, jwtSecret, issuer string, ttlHours, bcryptCost int, logger *zap.Logger) *AuthHandler {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		DB:         db,
		Ledger:     svc,
		JWTSecret:  jwtSecret,
		Issuer:     issuer,
		TokenTTL:   time.Duration(ttlHours) * time.Hour,
		BcryptCost: bcryptCost,
		Logger:     logger,
	}
}

// ---------- challenge ----------

type challengeReq struct {
	Address string `json:"address" binding:"required"`
}

// Challenge issues a fresh nonce for an address. The wallet signs the
// returned message (personal_sign) and the signature goes into Register.
// A new challenge replaces any open one for the same address.
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req challengeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	addr, err := util.NormalizeAddress(req.Address)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid wallet address")
		return
	}

	ch := models.AuthChallenge{
		Address:   addr,
		Nonce:     uuid.New().String(),
		ExpiresAt: time.Now().Add(challengeTTL),
	}
	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"nonce", "expires_at", "created_at"}),
	}).Create(&ch).Error
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create challenge")
		return
	}

	util.Success(c, util.Response{
		"address":    addr,
		"nonce":      ch.Nonce,
		"message":    util.ChallengeMessage(addr, ch.Nonce),
		"expires_at": ch.ExpiresAt,
	})
}

// ---------- register ----------

type registerReq struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	DisplayName     string `json:"display_name" binding:"max=64"`
	Address         string `json:"address" binding:"required"`
	Signature       string `json:"signature" binding:"required"`
}

// Register creates an account bound to a wallet address. The caller must
// present a signature of the address's open challenge made by that wallet.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !usernameRe.MatchString(req.Username) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "username must be 3-20 letters, digits or underscores")
		return
	}
	if !isStrongPassword(req.Password) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "password must be 8-32 chars with upper, lower case and a digit")
		return
	}
	if req.Password != req.ConfirmPassword {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "passwords do not match")
		return
	}
	addr, err := util.NormalizeAddress(req.Address)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid wallet address")
		return
	}

	var count int64
	if err := h.DB.Model(&models.User{}).
		Where("LOWER(username) = LOWER(?) OR address = ?", req.Username, addr).
		Count(&count).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to query users")
		return
	}
	if count > 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "username or address already registered")
		return
	}

	var ch models.AuthChallenge
	err = h.DB.Where("address = ?", addr).First(&ch).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load challenge")
		return
	}
	if err != nil || !time.Now().Before(ch.ExpiresAt) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "request a challenge for this address first")
		return
	}
	if err := util.VerifyWalletSignature(addr, util.ChallengeMessage(addr, ch.Nonce), req.Signature); err != nil {
		h.Logger.Warn("rejected address claim", zap.String("address", addr), zap.String("ip", c.ClientIP()), zap.Error(err))
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "signature does not prove control of the address")
		return
	}

	hash, err := util.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Address:      addr,
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		// consume the challenge so the signature cannot be replayed
		res := tx.Where("address = ? AND nonce = ?", addr, ch.Nonce).Delete(&models.AuthChallenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errChallengeUsed
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, errChallengeUsed) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "request a challenge for this address first")
		return
	}
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create user")
		return
	}

	util.Success(c, util.Response{
		"message": "registered",
		"user":    h.userView(&user),
	})
}

// 8-32 chars with upper case, lower case and a digit
func isStrongPassword(pwd string) bool {
	if len(pwd) < 8 || len(pwd) > 32 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, ch := range pwd {
		switch {
		case ch >= 'A' && ch <= 'Z':
			hasUpper = true
		case ch >= 'a' && ch <= 'z':
			hasLower = true
		case ch >= '0' && ch <= '9':
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

// ---------- login ----------

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}

	var user models.User
	if err := h.DB.Where("LOWER(username) = LOWER(?)", strings.TrimSpace(req.Username)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "wrong username or password")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to query user")
		}
		return
	}

	now := time.Now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "account locked, try again later")
		return
	}

	if !util.CheckPassword(req.Password, user.PasswordHash) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxFailedLogins {
			lockUntil := now.Add(lockoutDuration)
			user.LockedUntil = &lockUntil
			user.FailedLoginAttempts = 0
			h.Logger.Warn("account locked", zap.String("username", user.Username), zap.String("ip", c.ClientIP()))
		}
		_ = h.DB.Save(&user).Error
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "wrong username or password")
		return
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginIP = c.ClientIP()
	user.LastLoginAt = &now
	_ = h.DB.Save(&user).Error

	session := models.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(h.TokenTTL),
		IP:        c.ClientIP(),
	}
	if err := h.DB.Omit("User").Create(&session).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create session")
		return
	}

	token, expires, err := util.GenerateToken(h.JWTSecret, h.Issuer, session.ID, user.ID, user.Address, h.TokenTTL)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to issue token")
		return
	}

	util.Success(c, util.Response{
		"token":      token,
		"expires_at": expires,
		"user":       h.userView(&user),
	})
}

// Logout revokes the session behind the current token.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
		return
	}
	now := time.Now()
	err := h.DB.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to revoke session")
		return
	}
	util.Success(c, util.Response{"message": "logged out"})
}

// Me returns the current user, its role, and for tenants the id of their room.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	resp := util.Response{"user": h.userView(user)}
	if roleOf(h.Ledger.Guard(), user.Address) == RoleTenant {
		p, err := h.Ledger.RecordOf(c.Request.Context(), user.Address)
		switch {
		case err == nil:
			resp["property_id"] = p.ID
		case errors.Is(err, ledger.ErrNotFound):
			resp["property_id"] = nil
		default:
			ledgerError(c, err)
			return
		}
	}
	util.Success(c, resp)
}

func (h *AuthHandler) userView(u *models.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"display_name": u.DisplayName,
		"address":      u.Address,
		"role":         roleOf(h.Ledger.Guard(), u.Address),
		"created_at":   u.CreatedAt,
	}
}
