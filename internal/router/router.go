package router

import (
	"net/http"

	"github.com/StewieC/DApp-PropertyVault/internal/config"
	"github.com/StewieC/DApp-PropertyVault/internal/events"
	"github.com/StewieC/DApp-PropertyVault/internal/handler"
	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/metrics"
	"github.com/StewieC/DApp-PropertyVault/internal/middleware"
	"github.com/StewieC/DApp-PropertyVault/internal/token"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the services the HTTP API is built on. Events and Metrics are optional.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Ledger  *ledger.Service
	Token   *token.Token
	Events  *events.Publisher
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// SetupRouter configures the gin engine and every API route.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		if cfg.Metrics.Enabled {
			path := cfg.Metrics.Path
			if path == "" {
				path = "/metrics"
			}
			r.GET(path, gin.WrapH(d.Metrics.Handler()))
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			util.Error(c, http.StatusServiceUnavailable, util.CodeServerErr, "database unavailable")
			return
		}
		util.Success(c, util.Response{"status": "ok"})
	})

	units := handler.Units{Decimals: cfg.Vault.Decimals, Symbol: cfg.Vault.Symbol}
	if units.Decimals == 0 {
		units.Decimals = util.TokenDecimals
	}

	// ====== API ======
	api := r.Group("/api")

	authHandler := handler.NewAuthHandler(d.DB, d.Ledger, cfg.JWT.Secret, cfg.JWT.Issuer,
		cfg.JWT.ExpireHours, cfg.Security.BcryptCost, logger)
	api.POST("/auth/challenge", authHandler.Challenge)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.JWT.Secret, d.DB),
		middleware.AuditMiddleware(d.DB, cfg.Security.EncryptionKey, logger),
	)

	protected.GET("/me", authHandler.Me)
	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/profile", handler.UpdateProfile(d.DB))
	protected.POST("/profile/password", handler.ChangePassword(d.DB, cfg.Security.BcryptCost))

	propertyHandler := handler.NewPropertyHandler(d.Ledger, units)
	protected.POST("/properties", propertyHandler.CreateProperty)
	protected.GET("/properties", propertyHandler.ListProperties)
	protected.GET("/properties/count", propertyHandler.CountProperties)
	protected.GET("/properties/mine", propertyHandler.MyProperty)
	protected.GET("/properties/:id", propertyHandler.GetProperty)
	protected.POST("/properties/:id/pay", propertyHandler.PayRent)
	protected.POST("/properties/:id/withdraw", propertyHandler.WithdrawSavings)

	historyHandler := handler.NewHistoryHandler(d.Ledger, d.Events, units)
	protected.GET("/payments", historyHandler.ListPayments)
	protected.GET("/withdrawals", historyHandler.ListWithdrawals)
	protected.GET("/history/tenant", historyHandler.TenantHistory)
	protected.GET("/history/owner", historyHandler.OwnerHistory)
	protected.GET("/events", historyHandler.RecentEvents)

	tokenHandler := handler.NewTokenHandler(d.Token, d.Ledger.Guard(), units, cfg.Token.FaucetEnabled, logger)
	protected.GET("/token/balance", tokenHandler.Balance)
	protected.GET("/token/allowance", tokenHandler.Allowance)
	protected.POST("/token/approve", tokenHandler.Approve)
	protected.POST("/token/mint", tokenHandler.Mint)
	protected.GET("/token/transfers", tokenHandler.Transfers)

	logHandler := handler.NewLogHandler(d.DB, cfg.Security.EncryptionKey, cfg.App.PageSize)
	protected.GET("/logs", logHandler.ListLogs)

	backupHandler := handler.NewBackupHandler(d.DB, d.Ledger, cfg.Security.EncryptionKey, cfg.Backup.Dir)
	protected.POST("/backups", backupHandler.CreateBackup)
	protected.GET("/backups", backupHandler.ListBackups)
	protected.GET("/backups/:id/download", backupHandler.DownloadBackup)
	protected.DELETE("/backups/:id", backupHandler.DeleteBackup)

	exportHandler := handler.NewExportHandler(d.Ledger, units)
	protected.GET("/export/csv", exportHandler.ExportCSV)
	protected.GET("/export/xlsx", exportHandler.ExportXLSX)

	return r
}
