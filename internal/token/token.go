package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount must be positive")
)

// Token is a database-backed rent currency with ERC-20 style balances and
// allowances. It serves as the ledger's transfer gateway: TransferIn spends
// the payer's allowance to the vault, TransferOut pays out of the vault.
type Token struct {
	db    *gorm.DB
	vault string
	clock func() time.Time
}

var _ ledger.TxGateway = (*Token)(nil)

func New(db *gorm.DB, vault string) (*Token, error) {
	v, err := util.NormalizeAddress(vault)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Token{db: db, vault: v, clock: time.Now}, nil
}

// Vault returns the custody address.
func (t *Token) Vault() string { return t.vault }

// WithTx returns a Token whose operations join tx.
func (t *Token) WithTx(tx *gorm.DB) ledger.Gateway {
	return &Token{db: tx, vault: t.vault, clock: t.clock}
}

// BalanceOf returns the balance of addr; unknown accounts hold zero.
func (t *Token) BalanceOf(ctx context.Context, addr string) (int64, error) {
	a, err := util.NormalizeAddress(addr)
	if err != nil {
		return 0, err
	}
	var acct models.TokenAccount
	err = t.db.WithContext(ctx).Where("address = ?", a).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", a, err)
	}
	return acct.Balance, nil
}

// Allowance returns how much spender may move out of owner's account.
func (t *Token) Allowance(ctx context.Context, owner, spender string) (int64, error) {
	o, err := util.NormalizeAddress(owner)
	if err != nil {
		return 0, err
	}
	s, err := util.NormalizeAddress(spender)
	if err != nil {
		return 0, err
	}
	var al models.TokenAllowance
	err = t.db.WithContext(ctx).Where("owner = ? AND spender = ?", o, s).First(&al).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("allowance: %w", err)
	}
	return al.Amount, nil
}

// Approve sets (not adds to) the allowance from owner to spender.
func (t *Token) Approve(ctx context.Context, owner, spender string, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	o, err := util.NormalizeAddress(owner)
	if err != nil {
		return err
	}
	s, err := util.NormalizeAddress(spender)
	if err != nil {
		return err
	}
	al := models.TokenAllowance{Owner: o, Spender: s, Amount: amount}
	err = t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&al).Error
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// Mint credits new units to addr.
func (t *Token) Mint(ctx context.Context, to string, amount int64) (ledger.Transfer, error) {
	if amount <= 0 {
		return ledger.Transfer{}, ErrInvalidAmount
	}
	a, err := util.NormalizeAddress(to)
	if err != nil {
		return ledger.Transfer{}, err
	}
	var tr ledger.Transfer
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := credit(tx, a, amount); err != nil {
			return err
		}
		tr, err = t.receipt(tx, "", a, amount)
		return err
	})
	return tr, err
}

// TransferIn moves amount from `from` into the vault, spending from's
// allowance to the vault.
func (t *Token) TransferIn(ctx context.Context, from string, amount int64) (ledger.Transfer, error) {
	if amount <= 0 {
		return ledger.Transfer{}, ErrInvalidAmount
	}
	a, err := util.NormalizeAddress(from)
	if err != nil {
		return ledger.Transfer{}, err
	}
	var tr ledger.Transfer
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := spendAllowance(tx, a, t.vault, amount); err != nil {
			return err
		}
		if err := move(tx, a, t.vault, amount); err != nil {
			return err
		}
		tr, err = t.receipt(tx, a, t.vault, amount)
		return err
	})
	return tr, err
}

// TransferOut moves amount from the vault to `to`.
func (t *Token) TransferOut(ctx context.Context, to string, amount int64) (ledger.Transfer, error) {
	if amount <= 0 {
		return ledger.Transfer{}, ErrInvalidAmount
	}
	a, err := util.NormalizeAddress(to)
	if err != nil {
		return ledger.Transfer{}, err
	}
	var tr ledger.Transfer
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := move(tx, t.vault, a, amount); err != nil {
			return err
		}
		tr, err = t.receipt(tx, t.vault, a, amount)
		return err
	})
	return tr, err
}

// Transfers lists receipts touching addr, newest first.
func (t *Token) Transfers(ctx context.Context, addr string, limit int) ([]models.TokenTransfer, error) {
	a, err := util.NormalizeAddress(addr)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var list []models.TokenTransfer
	err = t.db.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", a, a).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return list, nil
}

func spendAllowance(tx *gorm.DB, owner, spender string, amount int64) error {
	res := tx.Model(&models.TokenAllowance{}).
		Where("owner = ? AND spender = ? AND amount >= ?", owner, spender, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("spend allowance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientAllowance
	}
	return nil
}

func move(tx *gorm.DB, from, to string, amount int64) error {
	res := tx.Model(&models.TokenAccount{}).
		Where("address = ? AND balance >= ?", from, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit %s: %w", from, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return credit(tx, to, amount)
}

func credit(tx *gorm.DB, to string, amount int64) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TokenAccount{Address: to}).Error
	if err != nil {
		return fmt.Errorf("open account %s: %w", to, err)
	}
	err = tx.Model(&models.TokenAccount{}).
		Where("address = ?", to).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

func (t *Token) receipt(tx *gorm.DB, from, to string, amount int64) (ledger.Transfer, error) {
	rec := models.TokenTransfer{
		Reference: NewReference(),
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: t.clock().UTC(),
	}
	if err := tx.Create(&rec).Error; err != nil {
		return ledger.Transfer{}, fmt.Errorf("record transfer: %w", err)
	}
	return ledger.Transfer{Reference: rec.Reference, At: rec.CreatedAt}, nil
}

// NewReference returns a 0x-prefixed 32-byte hex identifier.
func NewReference() string {
	id := uuid.New()
	sum := sha256.Sum256(id[:])
	return "0x" + hex.EncodeToString(sum[:])
}
