// Package httpapi implements catalog.Lookup against the product service's
// REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/catalog"
	"github.com/utafrali/agricoventas/internal/domain"
	apperrors "github.com/utafrali/agricoventas/pkg/errors"
	"github.com/utafrali/agricoventas/pkg/httpclient"
)

const serviceName = "product-service"

// Getter is the subset of httpclient.CircuitBreakerClient used here.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// ProductClient looks products up over HTTP.
type ProductClient struct {
	client  Getter
	baseURL string
}

// NewProductClient creates a lookup calling {baseURL}/api/v1/products/{id}.
func NewProductClient(client Getter, baseURL string) *ProductClient {
	return &ProductClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type productResponse struct {
	Data *productDTO `json:"data"`
}

type productDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	UnitMeasure    string          `json:"unit_measure"`
	ImageURL       string          `json:"image_url"`
	SellerName     string          `json:"seller_name"`
	StockQuantity  float64         `json:"stock_quantity"`
	UnlimitedStock bool            `json:"unlimited_stock"`
}

// GetProduct implements catalog.Lookup.
func (c *ProductClient) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	resp, err := c.client.Get(ctx, c.baseURL+"/api/v1/products/"+url.PathEscape(productID))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", serviceName, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, apperrors.NotFound("product", productID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productID, err)
	}
	if body.Data == nil || body.Data.ID == "" {
		return nil, fmt.Errorf("decode product %s: empty data", productID)
	}

	dto := body.Data
	p := &catalog.Product{
		ID:          dto.ID,
		Name:        dto.Name,
		Price:       dto.Price,
		UnitMeasure: dto.UnitMeasure,
		ImageURL:    dto.ImageURL,
		SellerName:  dto.SellerName,
	}
	if dto.UnlimitedStock {
		p.Stock = domain.Unbounded()
	} else {
		p.Stock = domain.StockFromFloat(dto.StockQuantity)
	}
	return p, nil
}
