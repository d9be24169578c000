package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Transfer is the receipt of one movement through the gateway.
type Transfer struct {
	Reference string
	At        time.Time
}

// Gateway moves the rent currency between accounts and vault custody.
// TransferIn needs a prior allowance from `from` to the vault of at least amount.
type Gateway interface {
	TransferIn(ctx context.Context, from string, amount int64) (Transfer, error)
	TransferOut(ctx context.Context, to string, amount int64) (Transfer, error)
}

// TxGateway is a gateway that can run inside the ledger's database
// transaction, so a rolled-back payment or withdrawal also rolls back every
// transfer it made. The ledger only accepts gateways of this kind. Vault is
// the custody address, which can never be a tenant.
type TxGateway interface {
	Gateway
	WithTx(tx *gorm.DB) Gateway
	Vault() string
}
