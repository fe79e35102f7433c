package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
)

// Repository owns every stock mutation. Writers never read-modify-write
// quantity; each mutation is a single conditional UPDATE so concurrent
// checkouts cannot oversell.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, productID uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.InStock = product.Quantity > 0
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", productID, false).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Reserve decrements stock for qty units. The WHERE clause carries the
// availability check, so under concurrent reservations only writers that
// still see quantity >= qty succeed.
func (r *repository) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND is_deleted = ? AND quantity >= ?", productID, false, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"sold_count": gorm.Expr("sold_count + ?", qty),
			"in_stock":   gorm.Expr("quantity - ? > 0", qty),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Zero rows is either a missing product or not enough stock;
		// a follow-up read disambiguates.
		product, err := r.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		return pkgerrors.New(
			pkgerrors.CodeConflict,
			fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, qty, product.Quantity),
		)
	}
	return nil
}

// Restore returns qty units to stock after a cancellation or a downward
// quantity change. sold_count is a lifetime counter and stays put.
func (r *repository) Restore(ctx context.Context, productID uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity + ?", qty),
			"in_stock": true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
	}
	return nil
}
