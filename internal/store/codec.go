package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/domain"
)

// SchemaVersion is the version written into every persisted payload.
// Version 0 is the legacy bare-array layout.
const SchemaVersion = 1

// Codec errors.
var (
	ErrInvalidPayload     = errors.New("invalid cart payload")
	ErrUnsupportedVersion = errors.New("unsupported cart payload version")
)

// ValidationError describes the first line that failed validation.
// Index is -1 when the payload as a whole is malformed.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrInvalidPayload, e.Reason)
	}
	return fmt.Sprintf("%s: line %d: %s", ErrInvalidPayload, e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

type payload struct {
	Version int      `json:"version"`
	Lines   []record `json:"lines"`
}

// record is the persisted line layout. Field names are camelCase so that
// payloads written by the browser client decode unchanged.
type record struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	UnitMeasure    string          `json:"unitMeasure"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	SellerName     string          `json:"sellerName,omitempty"`
	Quantity       int             `json:"quantity"`
	StockQuantity  *float64        `json:"stockQuantity"`
	UnlimitedStock bool            `json:"unlimitedStock,omitempty"`
}

// Encode serializes lines into the versioned payload.
func Encode(lines []domain.CartLine) ([]byte, error) {
	p := payload{Version: SchemaVersion, Lines: make([]record, 0, len(lines))}
	for _, l := range lines {
		rec := record{
			ProductID:   l.ProductID,
			Name:        l.Name,
			Price:       l.Price,
			UnitMeasure: l.UnitMeasure,
			ImageURL:    l.ImageURL,
			SellerName:  l.SellerName,
			Quantity:    l.Quantity,
		}
		if l.Stock.IsUnbounded() {
			rec.UnlimitedStock = true
		} else {
			n := float64(l.Stock.Limit())
			rec.StockQuantity = &n
		}
		p.Lines = append(p.Lines, rec)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal cart payload: %w", err)
	}
	return data, nil
}

// Decode parses and validates a persisted payload. Both the versioned
// envelope and the legacy bare array are accepted. Any failure is returned
// as an error; callers decide how to recover.
func Decode(data []byte) ([]domain.CartLine, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "empty payload"}
	}

	var records []record
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &ValidationError{Index: -1, Reason: err.Error()}
		}
	case '{':
		var p payload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &ValidationError{Index: -1, Reason: err.Error()}
		}
		if p.Version < 1 || p.Version > SchemaVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
		}
		if p.Lines == nil {
			return nil, &ValidationError{Index: -1, Reason: "lines are missing"}
		}
		records = p.Lines
	default:
		return nil, &ValidationError{Index: -1, Reason: "payload must be an array or an object"}
	}

	lines := make([]domain.CartLine, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		line, err := rec.toLine()
		if err != nil {
			return nil, &ValidationError{Index: i, Reason: err.Error()}
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, &ValidationError{Index: i, Reason: "duplicate product id " + line.ProductID}
		}
		seen[line.ProductID] = struct{}{}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r record) toLine() (domain.CartLine, error) {
	if r.ProductID == "" {
		return domain.CartLine{}, errors.New("product id is missing")
	}
	if r.Price.IsNegative() {
		return domain.CartLine{}, errors.New("price is negative")
	}

	var stock domain.StockBound
	switch {
	case r.UnlimitedStock:
		stock = domain.Unbounded()
	case r.StockQuantity == nil:
		return domain.CartLine{}, errors.New("stock quantity is missing")
	case *r.StockQuantity < 0 || *r.StockQuantity != math.Trunc(*r.StockQuantity):
		return domain.CartLine{}, fmt.Errorf("stock quantity %v is not a non-negative integer", *r.StockQuantity)
	default:
		stock = domain.StockFromFloat(*r.StockQuantity)
	}

	if !stock.Allows(r.Quantity) {
		return domain.CartLine{}, fmt.Errorf("quantity %d is outside stock bound", r.Quantity)
	}

	return domain.CartLine{
		ProductID:   r.ProductID,
		Name:        r.Name,
		Price:       r.Price,
		UnitMeasure: r.UnitMeasure,
		ImageURL:    r.ImageURL,
		SellerName:  r.SellerName,
		Quantity:    r.Quantity,
		Stock:       stock,
	}, nil
}
