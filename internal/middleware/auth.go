package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Context keys set by AuthMiddleware.
const (
	CurrentUserKey    = "currentUser"
	CurrentSessionKey = "currentSession"
	CurrentAddressKey = "currentAddress"
)

// AuthMiddleware verifies the JWT, checks that its session has not been
// revoked, and puts the user and its wallet address into the context. The
// address is the caller identity for every ledger operation.
func AuthMiddleware(jwtSecret string, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, tokenStr)
		if err != nil || claims.ID == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "session expired, please log in again")
			c.Abort()
			return
		}

		var session models.Session
		err = db.WithContext(c.Request.Context()).
			Preload("User").
			Where("id = ?", claims.ID).
			First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "session not found")
			} else {
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load session")
			}
			c.Abort()
			return
		}
		if !session.Active(time.Now()) || session.UserID != claims.UserID {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "session expired, please log in again")
			c.Abort()
			return
		}

		user := session.User
		c.Set(CurrentUserKey, &user)
		c.Set(CurrentSessionKey, &session)
		c.Set(CurrentAddressKey, user.Address)
		c.Next()
	}
}

// bearerToken looks in the Authorization header, then ?token= (for downloads
// that cannot set headers), then the pv_token cookie.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if t := c.Query("token"); t != "" {
		return t
	}
	if cookie, err := c.Cookie("pv_token"); err == nil {
		return cookie
	}
	return ""
}

// CurrentUser returns the authenticated user, or nil outside AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentSession returns the session behind the request's token.
func CurrentSession(c *gin.Context) *models.Session {
	v, ok := c.Get(CurrentSessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*models.Session)
	return s
}

// CurrentAddress returns the caller's wallet address.
func CurrentAddress(c *gin.Context) string {
	return c.GetString(CurrentAddressKey)
}
