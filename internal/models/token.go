package models

import "time"

// TokenAccount holds the rent-currency balance of one address.
type TokenAccount struct {
	Address   string `gorm:"primaryKey;size:42"`
	Balance   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TokenAllowance is how much Spender may move out of Owner's account.
type TokenAllowance struct {
	Owner     string `gorm:"primaryKey;size:42"`
	Spender   string `gorm:"primaryKey;size:42"`
	Amount    int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TokenTransfer is the receipt of one balance movement. From is empty for mints.
type TokenTransfer struct {
	Reference string `gorm:"primaryKey;size:66"`
	From      string `gorm:"column:from_address;size:42;index"`
	To        string `gorm:"column:to_address;size:42;index;not null"`
	Amount    int64  `gorm:"not null"`
	CreatedAt time.Time
}
