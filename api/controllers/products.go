package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/api/responses"
	"github.com/pagestack/bookstore-backend/api/validators"
	"github.com/pagestack/bookstore-backend/internal/inventory"
	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/logger"
)

// CreateProduct adds a catalog listing. Admin only; the router enforces
// the role.
func CreateProduct(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Create(r.Context(), inventory.CreateProductInput{
			Title:       payload.Title,
			Author:      payload.Author,
			Category:    enums.ProductCategory(payload.Category),
			Description: payload.Description,
			PriceCents:  payload.PriceCents,
			Quantity:    payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newProductResponse(product))
	}
}

// ProductDetail returns a catalog listing with its live stock counters.
func ProductDetail(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "productId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}
		productID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		product, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProductResponse(product))
	}
}

type createProductRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	Category    string `json:"category" validate:"required"`
	Description string `json:"description,omitempty" validate:"omitempty,max=2000"`
	PriceCents  int64  `json:"price_cents" validate:"required,min=1"`
	Quantity    int    `json:"quantity" validate:"min=0"`
}

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Quantity    int       `json:"quantity"`
	InStock     bool      `json:"in_stock"`
	SoldCount   int       `json:"sold_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func newProductResponse(product *models.Product) productResponse {
	return productResponse{
		ID:          product.ID,
		Title:       product.Title,
		Author:      product.Author,
		Category:    string(product.Category),
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Quantity:    product.Quantity,
		InStock:     product.InStock,
		SoldCount:   product.SoldCount,
		CreatedAt:   product.CreatedAt,
	}
}
