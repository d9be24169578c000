package models

import "time"

// PaymentFact is the immutable audit entry for one executed rent payment.
// Seq is the global emission order; facts are never updated or deleted.
type PaymentFact struct {
	Seq           uint64    `gorm:"primaryKey"`
	PropertyID    uint64    `gorm:"index:idx_payment_property_seq,priority:1;not null"`
	Payer         string    `gorm:"size:42;not null"`
	Amount        int64     `gorm:"not null"`
	SavedForOwner int64     `gorm:"not null"`
	OwnerPortion  int64     `gorm:"not null"`
	Timestamp     time.Time `gorm:"index;not null"`
	Reference     string    `gorm:"size:66;uniqueIndex;not null"`
}

// WithdrawalFact records one savings withdrawal by the owner.
type WithdrawalFact struct {
	Seq        uint64    `gorm:"primaryKey"`
	PropertyID uint64    `gorm:"index;not null"`
	Owner      string    `gorm:"size:42;not null"`
	Amount     int64     `gorm:"not null"`
	Timestamp  time.Time `gorm:"index;not null"`
	Reference  string    `gorm:"size:66;uniqueIndex;not null"`
}
