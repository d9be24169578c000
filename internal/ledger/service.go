package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher receives facts after their transaction has committed.
type Publisher interface {
	PublishPayment(ctx context.Context, f *models.PaymentFact) error
	PublishWithdrawal(ctx context.Context, f *models.WithdrawalFact) error
}

// Observer receives outcome notifications, typically for metrics.
type Observer interface {
	RecordCreated(p *models.Property)
	PaymentApplied(f *models.PaymentFact)
	WithdrawalApplied(f *models.WithdrawalFact)
	OperationFailed(op string, err error)
}

// Options configures a Service. Owner and Gateway are required.
type Options struct {
	Owner     string
	Gateway   TxGateway
	Publisher Publisher
	Observer  Observer
	Logger    *zap.Logger
}

// Service is the rent-and-savings ledger: record creation, rent payments,
// savings withdrawals and the read side over the fact logs.
type Service struct {
	db        *gorm.DB
	store     *Store
	guard     Guard
	gateway   TxGateway
	publisher Publisher
	observer  Observer
	logger    *zap.Logger
	locks     *recordLocks
}

func NewService(db *gorm.DB, opts Options) (*Service, error) {
	owner, err := util.NormalizeAddress(opts.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if util.SameAddress(owner, opts.Gateway.Vault()) {
		return nil, errors.New("owner must not be the vault address")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        db,
		store:     NewStore(db),
		guard:     NewGuard(owner),
		gateway:   opts.Gateway,
		publisher: opts.Publisher,
		observer:  opts.Observer,
		logger:    logger,
		locks:     newRecordLocks(),
	}, nil
}

func (s *Service) Guard() Guard { return s.guard }

func (s *Service) Store() *Store { return s.store }

func (s *Service) Owner() string { return s.guard.Owner() }

// CreateParams are the immutable terms of a new record.
type CreateParams struct {
	Tenant         string
	RoomLabel      string
	RentAmount     int64
	SavingsPercent int
	SavingsGoal    int64
}

func (p CreateParams) validate(vault string) (tenant, label string, err error) {
	tenant, err = util.NormalizeAddress(p.Tenant)
	if err != nil {
		return "", "", fmt.Errorf("%w: tenant: %v", ErrInvalidArgument, err)
	}
	if util.SameAddress(tenant, vault) {
		return "", "", fmt.Errorf("%w: tenant must not be the vault address", ErrInvalidArgument)
	}
	if err := util.ValidateLabel(p.RoomLabel); err != nil {
		return "", "", fmt.Errorf("%w: room label: %v", ErrInvalidArgument, err)
	}
	if p.RentAmount <= 0 {
		return "", "", fmt.Errorf("%w: rent amount must be positive", ErrInvalidArgument)
	}
	if p.RentAmount > MaxRentAmount {
		return "", "", fmt.Errorf("%w: rent amount too large", ErrInvalidArgument)
	}
	if err := util.ValidatePercent(p.SavingsPercent); err != nil {
		return "", "", fmt.Errorf("%w: savings percent: %v", ErrInvalidArgument, err)
	}
	if p.SavingsGoal < 0 {
		return "", "", fmt.Errorf("%w: savings goal must not be negative", ErrInvalidArgument)
	}
	return tenant, strings.TrimSpace(p.RoomLabel), nil
}

// CreateRecord adds a record and returns its id. Owner only.
// Identical arguments twice create two distinct records.
func (s *Service) CreateRecord(ctx context.Context, caller string, params CreateParams) (*models.Property, error) {
	if err := s.guard.CanCreate(caller); err != nil {
		return nil, s.fail("create", err)
	}
	tenant, label, err := params.validate(s.gateway.Vault())
	if err != nil {
		return nil, s.fail("create", err)
	}

	p := &models.Property{
		Tenant:         tenant,
		RoomLabel:      label,
		RentAmount:     params.RentAmount,
		SavingsPercent: uint8(params.SavingsPercent),
		SavingsGoal:    params.SavingsGoal,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.store.insert(tx, p)
	})
	if err != nil {
		return nil, s.fail("create", err)
	}

	s.logger.Info("property created",
		zap.Uint64("property_id", p.ID),
		zap.String("tenant", p.Tenant),
		zap.Int64("rent_amount", p.RentAmount),
		zap.Uint8("savings_percent", p.SavingsPercent))
	if s.observer != nil {
		s.observer.RecordCreated(p)
	}
	return p, nil
}

// GetRecordCount returns the number of records.
func (s *Service) GetRecordCount(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}

// GetRecord returns one record or ErrNotFound.
func (s *Service) GetRecord(ctx context.Context, id uint64) (*models.Property, error) {
	return s.store.Get(ctx, id)
}

// ListRecords returns every record ordered by id.
func (s *Service) ListRecords(ctx context.Context) ([]models.Property, error) {
	return s.store.List(ctx)
}

// RecordOf returns the record rented by addr, or ErrNotFound.
func (s *Service) RecordOf(ctx context.Context, addr string) (*models.Property, error) {
	a, err := util.NormalizeAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.store.FindByTenant(ctx, a)
}

func (s *Service) bind(tx *gorm.DB) Gateway {
	return s.gateway.WithTx(tx)
}

// PayRent executes one rent payment on record id by caller, who must be the
// record's tenant. The full rent moves into vault custody, the savings portion
// accrues to TotalSaved, the rest is forwarded to the owner, and one
// PaymentFact is appended. Either all of that commits or none of it does.
func (s *Service) PayRent(ctx context.Context, caller string, id uint64) (*models.PaymentFact, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	var fact models.PaymentFact
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.store.get(tx, id)
		if err != nil {
			return err
		}
		if err := s.guard.CanPay(caller, p); err != nil {
			return err
		}

		saved, ownerPortion := Split(p.RentAmount, p.SavingsPercent)

		gw := s.bind(tx)
		in, err := gw.TransferIn(ctx, p.Tenant, p.RentAmount)
		if err != nil {
			return fmt.Errorf("%w: collect rent: %w", ErrTransferFailed, err)
		}
		if ownerPortion > 0 {
			if _, err := gw.TransferOut(ctx, s.guard.Owner(), ownerPortion); err != nil {
				return fmt.Errorf("%w: forward owner portion: %w", ErrTransferFailed, err)
			}
		}

		if saved > 0 {
			if err := s.store.addSaved(tx, id, saved); err != nil {
				return err
			}
		}

		fact = models.PaymentFact{
			PropertyID:    id,
			Payer:         p.Tenant,
			Amount:        p.RentAmount,
			SavedForOwner: saved,
			OwnerPortion:  ownerPortion,
			Timestamp:     in.At,
			Reference:     in.Reference,
		}
		return s.store.appendPayment(tx, &fact)
	})
	if err != nil {
		return nil, s.fail("pay", err)
	}

	s.logger.Info("rent paid",
		zap.Uint64("property_id", id),
		zap.Uint64("seq", fact.Seq),
		zap.Int64("amount", fact.Amount),
		zap.Int64("saved", fact.SavedForOwner),
		zap.String("reference", fact.Reference))
	if s.observer != nil {
		s.observer.PaymentApplied(&fact)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPayment(ctx, &fact); err != nil {
			s.logger.Warn("publish payment fact", zap.Uint64("seq", fact.Seq), zap.Error(err))
		}
	}
	return &fact, nil
}

// WithdrawSavings moves a record's whole TotalSaved from vault custody to the
// owner and resets it to zero. Owner only; zero balance is ErrNothingToWithdraw.
func (s *Service) WithdrawSavings(ctx context.Context, caller string, id uint64) (*models.WithdrawalFact, error) {
	if err := s.guard.CanWithdraw(caller); err != nil {
		return nil, s.fail("withdraw", err)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	var fact models.WithdrawalFact
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.store.get(tx, id)
		if err != nil {
			return err
		}
		if p.TotalSaved <= 0 {
			return fmt.Errorf("%w: property %d has no accrued savings", ErrNothingToWithdraw, id)
		}

		out, err := s.bind(tx).TransferOut(ctx, s.guard.Owner(), p.TotalSaved)
		if err != nil {
			return fmt.Errorf("%w: release savings: %w", ErrTransferFailed, err)
		}
		if err := s.store.resetSaved(tx, id); err != nil {
			return err
		}

		fact = models.WithdrawalFact{
			PropertyID: id,
			Owner:      s.guard.Owner(),
			Amount:     p.TotalSaved,
			Timestamp:  out.At,
			Reference:  out.Reference,
		}
		return s.store.appendWithdrawal(tx, &fact)
	})
	if err != nil {
		return nil, s.fail("withdraw", err)
	}

	s.logger.Info("savings withdrawn",
		zap.Uint64("property_id", id),
		zap.Int64("amount", fact.Amount),
		zap.String("reference", fact.Reference))
	if s.observer != nil {
		s.observer.WithdrawalApplied(&fact)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishWithdrawal(ctx, &fact); err != nil {
			s.logger.Warn("publish withdrawal fact", zap.Uint64("seq", fact.Seq), zap.Error(err))
		}
	}
	return &fact, nil
}

// ListPaymentFacts returns the payment log in emission order, optionally
// restricted to one record.
func (s *Service) ListPaymentFacts(ctx context.Context, propertyID *uint64) ([]models.PaymentFact, error) {
	return s.store.Payments(ctx, FactFilter{PropertyID: propertyID})
}

// ListWithdrawalFacts returns the withdrawal log in emission order.
func (s *Service) ListWithdrawalFacts(ctx context.Context, propertyID *uint64) ([]models.WithdrawalFact, error) {
	return s.store.Withdrawals(ctx, FactFilter{PropertyID: propertyID})
}

// TenantView returns the caller's own record and its payments, newest first.
func (s *Service) TenantView(ctx context.Context, caller string) (*models.Property, []models.PaymentFact, error) {
	p, err := s.RecordOf(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	id := p.ID
	facts, err := s.store.Payments(ctx, FactFilter{PropertyID: &id})
	if err != nil {
		return nil, nil, err
	}
	return p, TenantHistory(facts, p.ID), nil
}

// OwnerView returns every payment across all records, newest first,
// annotated with room label and tenant. Owner only.
func (s *Service) OwnerView(ctx context.Context, caller string) ([]OwnerEntry, error) {
	if !s.guard.IsOwner(caller) {
		return nil, fmt.Errorf("%w: only the owner can read the full history", ErrUnauthorized)
	}
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	facts, err := s.store.Payments(ctx, FactFilter{})
	if err != nil {
		return nil, err
	}
	return OwnerHistory(facts, records), nil
}

// fail logs unexpected faults and reports every failure to the observer.
// Domain errors are returned untouched so errors.Is keeps working.
func (s *Service) fail(op string, err error) error {
	if s.observer != nil {
		s.observer.OperationFailed(op, err)
	}
	if !IsDomainError(err) {
		s.logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// IsDomainError reports whether err is one of the ledger's error kinds.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrNothingToWithdraw)
}
