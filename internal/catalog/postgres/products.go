package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/catalog"
	"github.com/utafrali/agricoventas/internal/domain"
	"github.com/utafrali/agricoventas/pkg/database"
	apperrors "github.com/utafrali/agricoventas/pkg/errors"
)

// ProductRepository implements catalog.Lookup using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product lookup.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetProduct retrieves an active product with its seller's display name.
// Products flagged unlimited_stock map to an unbounded stock ceiling;
// all others use stock_quantity.
func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (_ *catalog.Product, err error) {
	query := `
		SELECT p.id, p.name, p.price::text, p.unit_measure,
		       COALESCE(p.image_url, ''), COALESCE(s.display_name, ''),
		       COALESCE(p.stock_quantity, 0)::float8, p.unlimited_stock
		FROM products p
		LEFT JOIN sellers s ON s.id = p.seller_id
		WHERE p.id = $1 AND p.is_active = true`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	var (
		p         catalog.Product
		price     string
		stockQty  float64
		unlimited bool
	)
	err = r.pool.QueryRow(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&price,
		&p.UnitMeasure,
		&p.ImageURL,
		&p.SellerName,
		&stockQty,
		&unlimited,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price for product %s: %w", productID, err)
	}

	if unlimited {
		p.Stock = domain.Unbounded()
	} else {
		p.Stock = domain.StockFromFloat(stockQty)
	}

	return &p, nil
}
