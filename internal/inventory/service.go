package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
)

// CreateProductInput describes a new catalog listing.
type CreateProductInput struct {
	Title       string
	Author      string
	Category    enums.ProductCategory
	Description string
	PriceCents  int64
	Quantity    int
}

// Service exposes the stock ledger to the order and payment flows. All
// mutating methods take the caller's transaction so stock changes commit or
// roll back together with the records that caused them.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*models.Product, error)
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	GetAvailable(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	AdjustForUpdate(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error
}

type service struct {
	repo Repository
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.Author == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author is required")
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid category %q", input.Category))
	}
	if input.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	product := &models.Product{
		Title:       input.Title,
		Author:      input.Author,
		Category:    input.Category,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		Quantity:    input.Quantity,
	}
	if err := s.repo.Insert(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.repo.GetByID(ctx, productID)
}

func (s *service) GetAvailable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.InStock {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product %s is out of stock", productID))
	}
	return product, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.repo.WithTx(tx).Reserve(ctx, productID, qty)
}

func (s *service) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.repo.WithTx(tx).Restore(ctx, productID, qty)
}

// AdjustForUpdate applies the stock delta for an order quantity change.
// A positive delta reserves additional units, a negative delta returns
// them, zero is a no-op.
func (s *service) AdjustForUpdate(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error {
	switch {
	case delta > 0:
		return s.Reserve(ctx, tx, productID, delta)
	case delta < 0:
		return s.Restore(ctx, tx, productID, -delta)
	default:
		return nil
	}
}
