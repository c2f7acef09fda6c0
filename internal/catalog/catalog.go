// Package catalog resolves products into cart candidates. It is the only
// place that decides whether a product has a stock ceiling.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/domain"
)

// Product is the catalog view of a listing at the time it is added to a cart.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	UnitMeasure string
	ImageURL    string
	SellerName  string
	Stock       domain.StockBound
}

// LineInput converts the product into an add candidate.
func (p *Product) LineInput() domain.LineInput {
	return domain.LineInput{
		ProductID:   p.ID,
		Name:        p.Name,
		Price:       p.Price,
		UnitMeasure: p.UnitMeasure,
		ImageURL:    p.ImageURL,
		SellerName:  p.SellerName,
		Stock:       p.Stock,
	}
}

// Lookup fetches products by ID.
type Lookup interface {
	// GetProduct returns the product or an error wrapping apperrors.ErrNotFound.
	GetProduct(ctx context.Context, productID string) (*Product, error)
}
