package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/config"
	"github.com/StewieC/DApp-PropertyVault/internal/handler"
	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/metrics"
	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/testutil"
	"github.com/StewieC/DApp-PropertyVault/internal/token"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	password   = "Passw0rdX"
	encryptKey = "test-encryption-key"
)

type apiResp struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	tok    *token.Token

	owner, tenant, stranger *testutil.Wallet
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	owner := testutil.NewWallet(t)
	cfg := &config.Config{
		JWT:      config.JWTConfig{Secret: "test-secret", Issuer: "propertyvault-test", ExpireHours: 1},
		Security: config.SecurityConfig{BcryptCost: 4, EncryptionKey: encryptKey},
		Backup:   config.BackupConfig{Dir: filepath.Join(t.TempDir(), "backups")},
		App:      config.AppSubConfig{PageSize: 20},
		Vault:    config.VaultConfig{Owner: owner.Address, Address: testutil.Vault, Decimals: 6, Symbol: "USDC"},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Token:    config.TokenConfig{FaucetEnabled: true},
	}

	tok, err := token.New(db, cfg.Vault.Address)
	require.NoError(t, err)
	m := metrics.New()
	svc, err := ledger.NewService(db, ledger.Options{Owner: cfg.Vault.Owner, Gateway: tok, Observer: m})
	require.NoError(t, err)

	engine := SetupRouter(Deps{Config: cfg, DB: db, Ledger: svc, Token: tok, Metrics: m})
	return &testServer{
		t: t, engine: engine, db: db, tok: tok,
		owner: owner, tenant: testutil.NewWallet(t), stranger: testutil.NewWallet(t),
	}
}

func (s *testServer) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) call(method, path, bearer string, body interface{}, wantStatus int, out interface{}) apiResp {
	s.t.Helper()
	w := s.do(method, path, bearer, body)
	require.Equal(s.t, wantStatus, w.Code, "%s %s: %s", method, path, w.Body.String())
	var resp apiResp
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil {
		require.NoError(s.t, json.Unmarshal(resp.Data, out))
	}
	return resp
}

type challenge struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// register claims address for username with a signature over the address's
// challenge made by signer.
func (s *testServer) register(username, address string, signer *testutil.Wallet) *httptest.ResponseRecorder {
	s.t.Helper()
	var ch challenge
	s.call(http.MethodPost, "/api/auth/challenge", "", gin.H{"address": address}, http.StatusOK, &ch)
	return s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username":         username,
		"password":         password,
		"confirm_password": password,
		"address":          address,
		"signature":        signer.SignMessage(s.t, ch.Message),
	})
}

// signup registers w's address and logs in, returning the bearer token.
func (s *testServer) signup(username string, w *testutil.Wallet) string {
	s.t.Helper()
	res := s.register(username, w.Address, w)
	require.Equal(s.t, http.StatusOK, res.Code, res.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	s.call(http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": password,
	}, http.StatusOK, &login)
	require.NotEmpty(s.t, login.Token)
	return login.Token
}

type propertyView struct {
	ID                  uint64 `json:"id"`
	Tenant              string `json:"tenant"`
	RentAmount          int64  `json:"rent_amount"`
	RentAmountDisplay   string `json:"rent_amount_display"`
	TotalSaved          int64  `json:"total_saved"`
	TotalSavedDisplay   string `json:"total_saved_display"`
	GoalProgressPercent int64  `json:"goal_progress_percent"`
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	s.call(http.MethodGet, "/healthz", "", nil, http.StatusOK, nil)
}

func TestAuth_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	resp := s.call(http.MethodGet, "/api/me", "", nil, http.StatusUnauthorized, nil)
	assert.Equal(t, util.CodeAuth, resp.Code)

	resp = s.call(http.MethodGet, "/api/me", "garbage", nil, http.StatusUnauthorized, nil)
	assert.Equal(t, util.CodeAuth, resp.Code)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)
	cases := []gin.H{
		{"username": "ab", "password": password, "confirm_password": password, "address": s.tenant.Address},
		{"username": "alice", "password": "weak", "confirm_password": "weak", "address": s.tenant.Address},
		{"username": "alice", "password": password, "confirm_password": password + "x", "address": s.tenant.Address},
		{"username": "alice", "password": password, "confirm_password": password, "address": "0x12"},
	}
	for _, body := range cases {
		s.call(http.MethodPost, "/api/auth/register", "", body, http.StatusBadRequest, nil)
	}

	s.signup("alice", s.tenant)
	// same address twice, even with a valid signature
	w := s.register("alice2", s.tenant.Address, s.tenant)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_RequiresWalletProof(t *testing.T) {
	s := newTestServer(t)

	// claiming the owner's or a tenant's address with another key is refused
	w := s.register("mallory", s.owner.Address, s.stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.register("eve", s.tenant.Address, s.stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// no challenge issued for the address
	s.call(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "eve", "password": password, "confirm_password": password,
		"address": s.stranger.Address, "signature": s.stranger.SignMessage(t, "anything"),
	}, http.StatusBadRequest, nil)

	// malformed signature
	var ch challenge
	s.call(http.MethodPost, "/api/auth/challenge", "", gin.H{"address": s.tenant.Address}, http.StatusOK, &ch)
	assert.Contains(t, ch.Message, s.tenant.Address)
	s.call(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "eve", "password": password, "confirm_password": password,
		"address": s.tenant.Address, "signature": "0xdeadbeef",
	}, http.StatusForbidden, nil)

	// expired challenge
	s.call(http.MethodPost, "/api/auth/challenge", "", gin.H{"address": s.tenant.Address}, http.StatusOK, &ch)
	require.NoError(t, s.db.Model(&models.AuthChallenge{}).Where("address = ?", s.tenant.Address).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)
	s.call(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "tenant", "password": password, "confirm_password": password,
		"address": s.tenant.Address, "signature": s.tenant.SignMessage(t, ch.Message),
	}, http.StatusBadRequest, nil)

	var users int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)

	// the real wallets register; the used challenge is gone
	ownerTok := s.signup("owner", s.owner)
	var open int64
	require.NoError(t, s.db.Model(&models.AuthChallenge{}).Where("address = ?", s.owner.Address).Count(&open).Error)
	assert.Zero(t, open)

	malloryTok := s.signup("mallory", s.stranger)
	create := gin.H{"tenant": s.tenant.Address, "room_label": "Room 1", "rent_amount": "100", "savings_percent": 30}
	s.call(http.MethodPost, "/api/properties", malloryTok, create, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/properties", ownerTok, create, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/properties/0/pay", malloryTok, nil, http.StatusForbidden, nil)
}

func TestLogin_LockoutAfterFailures(t *testing.T) {
	s := newTestServer(t)
	s.signup("bob", s.tenant)

	for i := 0; i < 5; i++ {
		s.call(http.MethodPost, "/api/auth/login", "", gin.H{"username": "bob", "password": "Wrong123x"},
			http.StatusUnauthorized, nil)
	}
	resp := s.call(http.MethodPost, "/api/auth/login", "", gin.H{"username": "bob", "password": password},
		http.StatusUnauthorized, nil)
	assert.Contains(t, resp.Message, "locked")
}

func TestLogout_RevokesSession(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup("carol", s.tenant)

	s.call(http.MethodGet, "/api/me", tok, nil, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/auth/logout", tok, nil, http.StatusOK, nil)
	s.call(http.MethodGet, "/api/me", tok, nil, http.StatusUnauthorized, nil)
}

func TestMe_Roles(t *testing.T) {
	s := newTestServer(t)
	ownerTok := s.signup("owner", s.owner)
	tenantTok := s.signup("tenant", s.tenant)

	var me struct {
		User struct {
			Role    string `json:"role"`
			Address string `json:"address"`
		} `json:"user"`
		PropertyID *uint64 `json:"property_id"`
	}
	s.call(http.MethodGet, "/api/me", ownerTok, nil, http.StatusOK, &me)
	assert.Equal(t, handler.RoleOwner, me.User.Role)

	s.call(http.MethodGet, "/api/me", tenantTok, nil, http.StatusOK, &me)
	assert.Equal(t, handler.RoleTenant, me.User.Role)
	assert.Nil(t, me.PropertyID)
}

func TestRentFlow(t *testing.T) {
	s := newTestServer(t)
	ownerTok := s.signup("owner", s.owner)
	tenantTok := s.signup("tenant", s.tenant)
	strangerTok := s.signup("stranger", s.stranger)

	// fund the tenant through the faucet, then approve the vault
	s.call(http.MethodPost, "/api/token/mint", ownerTok, gin.H{"address": s.tenant.Address, "amount": "1000"}, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/token/mint", tenantTok, gin.H{"amount": "1"}, http.StatusForbidden, nil)

	// tenant creating a record is forbidden
	create := gin.H{"tenant": s.tenant.Address, "room_label": "Room 1", "rent_amount": "100", "savings_percent": 30, "savings_goal": "500"}
	resp := s.call(http.MethodPost, "/api/properties", tenantTok, create, http.StatusForbidden, nil)
	assert.Equal(t, util.CodeForbidden, resp.Code)

	var created struct {
		Property propertyView `json:"property"`
	}
	s.call(http.MethodPost, "/api/properties", ownerTok, create, http.StatusOK, &created)
	assert.Equal(t, uint64(0), created.Property.ID)
	assert.Equal(t, int64(100_000_000), created.Property.RentAmount)
	assert.Equal(t, "100.000000", created.Property.RentAmountDisplay)

	bad := gin.H{"tenant": s.tenant.Address, "room_label": "Room 2", "rent_amount": "100", "savings_percent": 101}
	s.call(http.MethodPost, "/api/properties", ownerTok, bad, http.StatusBadRequest, nil)
	bad = gin.H{"tenant": s.tenant.Address, "room_label": "Room 2", "rent_amount": "1.0000001", "savings_percent": 5}
	s.call(http.MethodPost, "/api/properties", ownerTok, bad, http.StatusBadRequest, nil)

	// paying before approving fails with a transfer error and changes nothing
	resp = s.call(http.MethodPost, "/api/properties/0/pay", tenantTok, nil, http.StatusPaymentRequired, nil)
	assert.Equal(t, util.CodeTransferFailed, resp.Code)

	s.call(http.MethodPost, "/api/token/approve", tenantTok, gin.H{"amount": "1000"}, http.StatusOK, nil)
	var allowance struct {
		Allowance int64 `json:"allowance"`
	}
	s.call(http.MethodGet, "/api/token/allowance", tenantTok, nil, http.StatusOK, &allowance)
	assert.Equal(t, int64(1000_000_000), allowance.Allowance)

	s.call(http.MethodPost, "/api/properties/0/pay", strangerTok, nil, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/properties/0/pay", ownerTok, nil, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/properties/9/pay", tenantTok, nil, http.StatusNotFound, nil)
	s.call(http.MethodPost, "/api/properties/x/pay", tenantTok, nil, http.StatusBadRequest, nil)

	var paid struct {
		Payment struct {
			Amount        int64  `json:"amount"`
			SavedForOwner int64  `json:"saved_for_owner"`
			Reference     string `json:"reference"`
		} `json:"payment"`
		Property propertyView `json:"property"`
	}
	s.call(http.MethodPost, "/api/properties/0/pay", tenantTok, nil, http.StatusOK, &paid)
	assert.Equal(t, int64(30_000_000), paid.Payment.SavedForOwner)
	assert.Equal(t, int64(30_000_000), paid.Property.TotalSaved)
	assert.Len(t, paid.Payment.Reference, 66)

	s.call(http.MethodPost, "/api/properties/0/pay", tenantTok, nil, http.StatusOK, &paid)
	assert.Equal(t, "60.000000", paid.Property.TotalSavedDisplay)
	assert.Equal(t, int64(12), paid.Property.GoalProgressPercent)

	var mine struct {
		Property propertyView `json:"property"`
	}
	s.call(http.MethodGet, "/api/properties/mine", tenantTok, nil, http.StatusOK, &mine)
	assert.Equal(t, uint64(0), mine.Property.ID)
	s.call(http.MethodGet, "/api/properties/mine", strangerTok, nil, http.StatusNotFound, nil)

	var count struct {
		Count uint64 `json:"count"`
	}
	s.call(http.MethodGet, "/api/properties/count", strangerTok, nil, http.StatusOK, &count)
	assert.Equal(t, uint64(1), count.Count)

	var tenantHist struct {
		Items []struct {
			Seq uint64 `json:"seq"`
		} `json:"items"`
		Totals struct {
			Payments int   `json:"payments"`
			Saved    int64 `json:"saved"`
		} `json:"totals"`
	}
	s.call(http.MethodGet, "/api/history/tenant", tenantTok, nil, http.StatusOK, &tenantHist)
	require.Len(t, tenantHist.Items, 2)
	assert.Greater(t, tenantHist.Items[0].Seq, tenantHist.Items[1].Seq)
	assert.Equal(t, int64(60_000_000), tenantHist.Totals.Saved)

	s.call(http.MethodGet, "/api/history/owner", tenantTok, nil, http.StatusForbidden, nil)
	var ownerHist struct {
		Items []struct {
			RoomLabel string `json:"room_label"`
			Tenant    string `json:"tenant"`
		} `json:"items"`
	}
	s.call(http.MethodGet, "/api/history/owner", ownerTok, nil, http.StatusOK, &ownerHist)
	require.Len(t, ownerHist.Items, 2)
	assert.Equal(t, "Room 1", ownerHist.Items[0].RoomLabel)

	var payments struct {
		Total int `json:"total"`
	}
	s.call(http.MethodGet, "/api/payments?property_id=0", ownerTok, nil, http.StatusOK, &payments)
	assert.Equal(t, 2, payments.Total)
	s.call(http.MethodGet, "/api/payments?property_id=abc", ownerTok, nil, http.StatusBadRequest, nil)

	// withdraw
	s.call(http.MethodPost, "/api/properties/0/withdraw", tenantTok, nil, http.StatusForbidden, nil)
	var withdrawn struct {
		Withdrawal struct {
			Amount int64 `json:"amount"`
		} `json:"withdrawal"`
	}
	s.call(http.MethodPost, "/api/properties/0/withdraw", ownerTok, nil, http.StatusOK, &withdrawn)
	assert.Equal(t, int64(60_000_000), withdrawn.Withdrawal.Amount)
	resp = s.call(http.MethodPost, "/api/properties/0/withdraw", ownerTok, nil, http.StatusConflict, nil)
	assert.Equal(t, util.CodeNothingToDo, resp.Code)

	var withdrawals struct {
		Total int `json:"total"`
	}
	s.call(http.MethodGet, "/api/withdrawals", ownerTok, nil, http.StatusOK, &withdrawals)
	assert.Equal(t, 1, withdrawals.Total)

	var bal struct {
		Balance int64 `json:"balance"`
	}
	s.call(http.MethodGet, "/api/token/balance", ownerTok, nil, http.StatusOK, &bal)
	assert.Equal(t, int64(200_000_000), bal.Balance)
	s.call(http.MethodGet, "/api/token/balance?address="+testutil.Vault, ownerTok, nil, http.StatusOK, &bal)
	assert.Equal(t, int64(0), bal.Balance)

	var transfers struct {
		Items []map[string]interface{} `json:"items"`
	}
	s.call(http.MethodGet, "/api/token/transfers", tenantTok, nil, http.StatusOK, &transfers)
	assert.Len(t, transfers.Items, 3) // mint plus two rent payments

	// the audit trail stores the tenant's payments encrypted and returns them decrypted
	var logs struct {
		Items []struct {
			Path   string `json:"path"`
			Method string `json:"method"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	s.call(http.MethodGet, "/api/logs?method=post", tenantTok, nil, http.StatusOK, &logs)
	assert.NotZero(t, logs.Total)
	paths := make([]string, 0, len(logs.Items))
	for _, l := range logs.Items {
		paths = append(paths, l.Path)
	}
	assert.Contains(t, paths, "/api/properties/0/pay")

	var stored models.AuditLog
	require.NoError(t, s.db.Where("method = ?", "POST").First(&stored).Error)
	assert.False(t, strings.HasPrefix(stored.PathEnc, "/api"))

	// metrics saw the two payments
	w := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, w.Body.String(), "propertyvault_ledger_payments_total 2")
}

func TestExports(t *testing.T) {
	s := newTestServer(t)
	ownerTok := s.signup("owner", s.owner)
	tenantTok := s.signup("tenant", s.tenant)

	ctx := context.Background()
	_, err := s.tok.Mint(ctx, s.tenant.Address, 500_000_000)
	require.NoError(t, err)
	require.NoError(t, s.tok.Approve(ctx, s.tenant.Address, testutil.Vault, 500_000_000))

	s.call(http.MethodPost, "/api/properties", ownerTok, gin.H{
		"tenant": s.tenant.Address, "room_label": "Attic", "rent_amount": "50", "savings_percent": 10,
	}, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/properties/0/pay", tenantTok, nil, http.StatusOK, nil)

	w := s.do(http.MethodGet, "/api/export/csv", tenantTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/export/csv", ownerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Date,Property,Room"))
	assert.Contains(t, lines[1], "Attic")
	assert.Contains(t, lines[1], "50.000000")
	assert.True(t, strings.HasPrefix(lines[2], "TOTAL"))

	w = s.do(http.MethodGet, "/api/export/xlsx", ownerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Payments", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Attic", v)
}

func TestBackups(t *testing.T) {
	s := newTestServer(t)
	ownerTok := s.signup("owner", s.owner)
	tenantTok := s.signup("tenant", s.tenant)

	s.call(http.MethodPost, "/api/properties", ownerTok, gin.H{
		"tenant": s.tenant.Address, "room_label": "Loft", "rent_amount": "10", "savings_percent": 50,
	}, http.StatusOK, nil)

	s.call(http.MethodPost, "/api/backups", tenantTok, nil, http.StatusForbidden, nil)

	var created struct {
		Backup struct {
			ID         uint `json:"id"`
			Properties int  `json:"properties"`
		} `json:"backup"`
	}
	s.call(http.MethodPost, "/api/backups", ownerTok, nil, http.StatusOK, &created)
	assert.Equal(t, 1, created.Backup.Properties)

	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	s.call(http.MethodGet, "/api/backups", ownerTok, nil, http.StatusOK, &list)
	require.Len(t, list.Items, 1)

	var b models.Backup
	require.NoError(t, s.db.First(&b, created.Backup.ID).Error)
	data, err := os.ReadFile(b.FilePath)
	require.NoError(t, err)
	snap, err := handler.DecodeSnapshot(encryptKey, data)
	require.NoError(t, err)
	require.Len(t, snap.Properties, 1)
	assert.Equal(t, "Loft", snap.Properties[0].RoomLabel)
	assert.Equal(t, s.owner.Address, snap.Owner)

	_, err = handler.DecodeSnapshot("wrong-key", data)
	assert.Error(t, err)

	path := fmt.Sprintf("/api/backups/%d", created.Backup.ID)
	w := s.do(http.MethodGet, path+"/download", ownerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())

	s.call(http.MethodDelete, path, ownerTok, nil, http.StatusOK, nil)
	s.call(http.MethodDelete, path, ownerTok, nil, http.StatusNotFound, nil)
	_, err = os.Stat(b.FilePath)
	assert.True(t, os.IsNotExist(err))
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup("dave", s.tenant)

	s.call(http.MethodPost, "/api/profile/password", tok, gin.H{"old_password": "nope", "new_password": "NewPassw0rd"},
		http.StatusBadRequest, nil)
	s.call(http.MethodPost, "/api/profile/password", tok, gin.H{"old_password": password, "new_password": "NewPassw0rd"},
		http.StatusOK, nil)

	// old sessions are revoked
	s.call(http.MethodGet, "/api/me", tok, nil, http.StatusUnauthorized, nil)
	s.call(http.MethodPost, "/api/auth/login", "", gin.H{"username": "dave", "password": "NewPassw0rd"}, http.StatusOK, nil)
}

func TestEvents_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	ownerTok := s.signup("owner", s.owner)
	s.call(http.MethodGet, "/api/events", ownerTok, nil, http.StatusNotFound, nil)
}
