package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Candidate validation errors.
var (
	ErrMissingProductID = errors.New("product id is required")
	ErrNegativePrice    = errors.New("price must not be negative")
)

// CartLine is one product's presence in the cart. Price is the unit price
// snapshotted when the product was first added.
type CartLine struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	UnitMeasure string          `json:"unit_measure"`
	ImageURL    string          `json:"image_url,omitempty"`
	SellerName  string          `json:"seller_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Stock       StockBound      `json:"stock"`
}

// Subtotal returns price * quantity for the line.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineInput is a candidate for adding a product to the cart.
type LineInput struct {
	ProductID   string
	Name        string
	Price       decimal.Decimal
	UnitMeasure string
	ImageURL    string
	SellerName  string
	Stock       StockBound
}

// Validate checks the descriptive fields of the candidate. Stock is not
// checked here: an exhausted stock is a business outcome, not bad input.
func (in LineInput) Validate() error {
	if in.ProductID == "" {
		return ErrMissingProductID
	}
	if in.Price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}

// NewLine builds a single-unit line from the candidate.
func (in LineInput) NewLine() CartLine {
	return CartLine{
		ProductID:   in.ProductID,
		Name:        in.Name,
		Price:       in.Price,
		UnitMeasure: in.UnitMeasure,
		ImageURL:    in.ImageURL,
		SellerName:  in.SellerName,
		Quantity:    1,
		Stock:       in.Stock,
	}
}

// TotalItems returns the sum of quantities across lines.
func TotalItems(lines []CartLine) int {
	var count int
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}

// TotalPrice returns the exact sum of quantity * price across lines.
func TotalPrice(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// FindLine returns the index of the line for productID, or -1.
func FindLine(lines []CartLine, productID string) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
