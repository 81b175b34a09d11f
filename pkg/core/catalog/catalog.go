// Package catalog is the client for the external product service: category
// listing with filters, and server-side fuzzy search used as the last stage
// of spoken product resolution.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"
)

// Diet types as the product service reports them.
const (
	DietVeg    = "veg"
	DietNonVeg = "non_veg"
)

// CategoryEpicSaver is the promotional category used for offers and the
// checkout-time upsell comparison.
const CategoryEpicSaver = "epic_saver"

// Product is an immutable catalog entity. The core never mutates products.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	DietType    string `json:"type"`
}

// UnmarshalJSON tolerates numeric ids and prices; the product service backs
// ids with a numeric column and some rows serialize them unquoted.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.Number `json:"id"`
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Price       json.Number `json:"price"`
		Category    string      `json:"category"`
		Image       string      `json:"image"`
		DietType    string      `json:"type"`
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	price, _ := strconv.ParseFloat(raw.Price.String(), 64)
	*p = Product{
		ID:          raw.ID.String(),
		Name:        raw.Name,
		Description: raw.Description,
		Price:       int(price),
		Category:    raw.Category,
		Image:       raw.Image,
		DietType:    raw.DietType,
	}
	return nil
}

// ListQuery filters a category listing. Zero values mean "no filter".
type ListQuery struct {
	Category string
	DietType string
	MaxPrice int
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	// MaxRetries bounds the exponential retry per request. Zero disables
	// retries.
	MaxRetries uint64

	// Breaker overrides the circuit breaker settings.
	Breaker gobreaker.Settings
}

// Client talks to the product service. Requests run behind a shared circuit
// breaker with bounded exponential retry; an open breaker or exhausted retry
// surfaces as an error the caller degrades on (no products / no upsell).
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	breaker    *gobreaker.CircuitBreaker[[]Product]
}

// NewClient returns a catalog client for the given service base URL.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	settings := cfg.Breaker
	if settings.Name == "" {
		settings.Name = "catalog"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		breaker:    gobreaker.NewCircuitBreaker[[]Product](settings),
	}
}

// List fetches products for a category with optional diet and price filters.
// An empty result is not an error.
func (c *Client) List(ctx context.Context, q ListQuery) ([]Product, error) {
	params := url.Values{}
	params.Set("category", q.Category)
	if q.DietType != "" {
		params.Set("type", q.DietType)
	}
	if q.MaxPrice > 0 {
		params.Set("max_price", strconv.Itoa(q.MaxPrice))
	}
	return c.get(ctx, "/api/products", params)
}

// FuzzySearch asks the service for approximate matches on a free-text query.
// A miss returns an empty slice, not an error.
func (c *Client) FuzzySearch(ctx context.Context, query string) ([]Product, error) {
	params := url.Values{}
	params.Set("q", query)
	return c.get(ctx, "/api/products/search", params)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]Product, error) {
	return c.breaker.Execute(func() ([]Product, error) {
		var products []Product
		backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(100*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var fetchErr error
			products, fetchErr = c.fetch(ctx, path, params)
			if fetchErr != nil {
				return retry.RetryableError(fetchErr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return products, nil
	})
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]Product, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog %s: unexpected status %d", path, resp.StatusCode)
	}
	return decodeProducts(body)
}

// decodeProducts accepts either a product array or the service's
// `{"error": "..."}` failure envelope.
func decodeProducts(body []byte) ([]Product, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
			return nil, fmt.Errorf("catalog error: %s", failure.Error)
		}
		return nil, fmt.Errorf("catalog: unexpected object response")
	}

	var products []Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return products, nil
}
