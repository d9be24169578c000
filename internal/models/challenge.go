package models

import "time"

// AuthChallenge is the nonce a wallet must sign before an account can be
// bound to its address. One open challenge per address; it is consumed on use.
type AuthChallenge struct {
	Address   string    `gorm:"primaryKey;size:42"`
	Nonce     string    `gorm:"size:36;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}
