package ledger

import (
	"fmt"

	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"
)

// Guard decides who may mutate the ledger. It holds no state besides the
// owner identity fixed at construction.
type Guard struct {
	owner string
}

func NewGuard(owner string) Guard {
	return Guard{owner: owner}
}

func (g Guard) Owner() string { return g.owner }

func (g Guard) IsOwner(caller string) bool {
	return util.SameAddress(caller, g.owner)
}

// CanCreate allows only the ledger owner.
func (g Guard) CanCreate(caller string) error {
	if !g.IsOwner(caller) {
		return fmt.Errorf("%w: only the owner can create records", ErrUnauthorized)
	}
	return nil
}

// CanWithdraw allows only the ledger owner.
func (g Guard) CanWithdraw(caller string) error {
	if !g.IsOwner(caller) {
		return fmt.Errorf("%w: only the owner can withdraw savings", ErrUnauthorized)
	}
	return nil
}

// CanPay allows only the record's tenant. The owner is not special here.
func (g Guard) CanPay(caller string, p *models.Property) error {
	if !util.SameAddress(caller, p.Tenant) {
		return fmt.Errorf("%w: caller is not the tenant of property %d", ErrUnauthorized, p.ID)
	}
	return nil
}
