package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/StewieC/DApp-PropertyVault/internal/models"

	"gorm.io/gorm"
)

// Store is the property table plus the two fact logs. Methods taking a tx
// run inside a caller-owned transaction; the rest read from the pool.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// FactFilter narrows fact listings. A nil PropertyID means all records.
type FactFilter struct {
	PropertyID *uint64
}

func (s *Store) count(tx *gorm.DB) (uint64, error) {
	var n int64
	if err := tx.Model(&models.Property{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count properties: %w", err)
	}
	return uint64(n), nil
}

// insert assigns the next sequential id. The caller's transaction holds the
// sqlite writer lock, so two inserts can never observe the same count.
func (s *Store) insert(tx *gorm.DB, p *models.Property) error {
	n, err := s.count(tx)
	if err != nil {
		return err
	}
	p.ID = n
	p.TotalSaved = 0
	if err := tx.Create(p).Error; err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

func (s *Store) get(tx *gorm.DB, id uint64) (*models.Property, error) {
	var p models.Property
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: property %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get property %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) addSaved(tx *gorm.DB, id uint64, delta int64) error {
	res := tx.Model(&models.Property{}).Where("id = ?", id).
		Update("total_saved", gorm.Expr("total_saved + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("accrue savings on property %d: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("accrue savings on property %d: %d rows updated", id, res.RowsAffected)
	}
	return nil
}

func (s *Store) resetSaved(tx *gorm.DB, id uint64) error {
	res := tx.Model(&models.Property{}).Where("id = ?", id).Update("total_saved", 0)
	if res.Error != nil {
		return fmt.Errorf("reset savings on property %d: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("reset savings on property %d: %d rows updated", id, res.RowsAffected)
	}
	return nil
}

func (s *Store) appendPayment(tx *gorm.DB, f *models.PaymentFact) error {
	f.Seq = 0
	if err := tx.Create(f).Error; err != nil {
		return fmt.Errorf("append payment fact: %w", err)
	}
	return nil
}

func (s *Store) appendWithdrawal(tx *gorm.DB, f *models.WithdrawalFact) error {
	f.Seq = 0
	if err := tx.Create(f).Error; err != nil {
		return fmt.Errorf("append withdrawal fact: %w", err)
	}
	return nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	return s.count(s.DB.WithContext(ctx))
}

// Get returns one record or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uint64) (*models.Property, error) {
	return s.get(s.DB.WithContext(ctx), id)
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]models.Property, error) {
	var list []models.Property
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return list, nil
}

// FindByTenant returns the first record whose tenant is addr (lower-case).
func (s *Store) FindByTenant(ctx context.Context, addr string) (*models.Property, error) {
	var p models.Property
	err := s.DB.WithContext(ctx).
		Where("tenant = ?", addr).
		Order("id ASC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no property for tenant %s", ErrNotFound, addr)
		}
		return nil, fmt.Errorf("find property by tenant: %w", err)
	}
	return &p, nil
}

// Payments returns payment facts in emission order.
func (s *Store) Payments(ctx context.Context, f FactFilter) ([]models.PaymentFact, error) {
	q := s.DB.WithContext(ctx).Model(&models.PaymentFact{})
	if f.PropertyID != nil {
		q = q.Where("property_id = ?", *f.PropertyID)
	}
	var facts []models.PaymentFact
	if err := q.Order("seq ASC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list payment facts: %w", err)
	}
	return facts, nil
}

// Withdrawals returns withdrawal facts in emission order.
func (s *Store) Withdrawals(ctx context.Context, f FactFilter) ([]models.WithdrawalFact, error) {
	q := s.DB.WithContext(ctx).Model(&models.WithdrawalFact{})
	if f.PropertyID != nil {
		q = q.Where("property_id = ?", *f.PropertyID)
	}
	var facts []models.WithdrawalFact
	if err := q.Order("seq ASC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list withdrawal facts: %w", err)
	}
	return facts, nil
}
