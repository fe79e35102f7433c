package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// Product represents a catalog listing with its stock counters.
// InStock is derived from Quantity and must track it after every mutation;
// all stock writes go through the inventory ledger so the pair never
// diverges.
type Product struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Title       string                `gorm:"column:title;not null"`
	Author      string                `gorm:"column:author;not null"`
	Category    enums.ProductCategory `gorm:"column:category;not null"`
	Description string                `gorm:"column:description"`
	PriceCents  int64                 `gorm:"column:price_cents;not null"`
	Quantity    int                   `gorm:"column:quantity;not null;default:0"`
	InStock     bool                  `gorm:"column:in_stock;not null;default:false"`
	SoldCount   int                   `gorm:"column:sold_count;not null;default:0"`
	IsDeleted   bool                  `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
