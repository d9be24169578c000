package token

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/StewieC/DApp-PropertyVault/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newToken(t *testing.T) (*Token, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	tok, err := New(db, testutil.Vault)
	require.NoError(t, err)
	return tok, db
}

func TestNew_InvalidVault(t *testing.T) {
	_, err := New(nil, "vault")
	assert.Error(t, err)
}

func TestMintAndBalance(t *testing.T) {
	tok, _ := newToken(t)
	ctx := context.Background()

	bal, err := tok.BalanceOf(ctx, testutil.Tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	tr, err := tok.Mint(ctx, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", 500)
	require.NoError(t, err)
	assert.Len(t, tr.Reference, 66)
	assert.False(t, tr.At.IsZero())

	_, err = tok.Mint(ctx, testutil.Tenant, 250)
	require.NoError(t, err)

	bal, err = tok.BalanceOf(ctx, testutil.Tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(750), bal)

	_, err = tok.Mint(ctx, testutil.Tenant, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApprove_Overwrites(t *testing.T) {
	tok, _ := newToken(t)
	ctx := context.Background()

	require.NoError(t, tok.Approve(ctx, testutil.Tenant, testutil.Vault, 1000))
	require.NoError(t, tok.Approve(ctx, testutil.Tenant, testutil.Vault, 300))

	al, err := tok.Allowance(ctx, testutil.Tenant, testutil.Vault)
	require.NoError(t, err)
	assert.Equal(t, int64(300), al)

	assert.ErrorIs(t, tok.Approve(ctx, testutil.Tenant, testutil.Vault, -1), ErrInvalidAmount)
}

func TestTransferIn(t *testing.T) {
	tok, _ := newToken(t)
	ctx := context.Background()

	_, err := tok.Mint(ctx, testutil.Tenant, 1000)
	require.NoError(t, err)

	_, err = tok.TransferIn(ctx, testutil.Tenant, 100)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, tok.Approve(ctx, testutil.Tenant, testutil.Vault, 5000))
	_, err = tok.TransferIn(ctx, testutil.Tenant, 2000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// failed transfer must not consume allowance
	al, _ := tok.Allowance(ctx, testutil.Tenant, testutil.Vault)
	assert.Equal(t, int64(5000), al)

	tr, err := tok.TransferIn(ctx, testutil.Tenant, 400)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.Reference, "0x"))

	tenantBal, _ := tok.BalanceOf(ctx, testutil.Tenant)
	vaultBal, _ := tok.BalanceOf(ctx, testutil.Vault)
	al, _ = tok.Allowance(ctx, testutil.Tenant, testutil.Vault)
	assert.Equal(t, int64(600), tenantBal)
	assert.Equal(t, int64(400), vaultBal)
	assert.Equal(t, int64(4600), al)
}

func TestTransferOut(t *testing.T) {
	tok, _ := newToken(t)
	ctx := context.Background()

	_, err := tok.TransferOut(ctx, testutil.Owner, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = tok.Mint(ctx, testutil.Vault, 100)
	require.NoError(t, err)
	_, err = tok.TransferOut(ctx, testutil.Owner, 60)
	require.NoError(t, err)

	ownerBal, _ := tok.BalanceOf(ctx, testutil.Owner)
	vaultBal, _ := tok.BalanceOf(ctx, testutil.Vault)
	assert.Equal(t, int64(60), ownerBal)
	assert.Equal(t, int64(40), vaultBal)
}

func TestWithTx_RollsBack(t *testing.T) {
	tok, db := newToken(t)
	ctx := context.Background()

	_, err := tok.Mint(ctx, testutil.Tenant, 100)
	require.NoError(t, err)
	require.NoError(t, tok.Approve(ctx, testutil.Tenant, testutil.Vault, 100))

	boom := errors.New("boom")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := tok.WithTx(tx).TransferIn(ctx, testutil.Tenant, 100); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	tenantBal, _ := tok.BalanceOf(ctx, testutil.Tenant)
	al, _ := tok.Allowance(ctx, testutil.Tenant, testutil.Vault)
	assert.Equal(t, int64(100), tenantBal)
	assert.Equal(t, int64(100), al)

	list, err := tok.Transfers(ctx, testutil.Tenant, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1) // the mint only
}

func TestNewReference_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		r := NewReference()
		assert.Len(t, r, 66)
		assert.False(t, seen[r])
		seen[r] = true
	}
}
