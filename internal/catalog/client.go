package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Product is the authoritative catalog record for a product id.
type Product struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price float64   `json:"price"`
}

var ErrUnknownProduct = errors.New("catalog: one or more products do not exist")

// Client talks to the product catalog service.
//
// Validate is the authoritative batch lookup used at order creation: one
// round-trip for the whole id set, failing if any id is unknown so that an
// order is never priced from a partial answer.
//
// Names is the enrichment lookup used on reads. It may return a partial map
// (products removed from the catalog simply have no entry) and callers are
// expected to tolerate misses.
type Client interface {
	Validate(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	cache   *redis.Client
	nameTTL time.Duration
}

// NewHTTPClient builds a catalog client for the given base URL. The redis
// client is optional; when present, resolved display names are cached under
// nameTTL to keep read-path enrichment off the catalog service. Prices are
// never cached: creation always revalidates against the catalog.
func NewHTTPClient(baseURL string, timeout time.Duration, cache *redis.Client, nameTTL time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		nameTTL: nameTTL,
	}
}

type validateRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (c *httpClient) Validate(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	body, err := json.Marshal(validateRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/products/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: validate request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, ErrUnknownProduct
	default:
		return nil, fmt.Errorf("catalog: validate returned unexpected status %d", resp.StatusCode)
	}

	var products []Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("catalog: failed to decode validate response: %w", err)
	}

	byID := make(map[uuid.UUID]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, ErrUnknownProduct
		}
	}

	c.cacheNames(ctx, products)

	return products, nil
}

func (c *httpClient) Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))

	missing := ids
	if c.cache != nil {
		missing = missing[:0:0]
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = nameKey(id)
		}
		values, err := c.cache.MGet(ctx, keys...).Result()
		if err != nil {
			log.Warn().Err(err).Msg("catalog: name cache read failed, falling back to catalog service")
			missing = ids
		} else {
			for i, v := range values {
				if s, ok := v.(string); ok {
					names[ids[i]] = s
				} else {
					missing = append(missing, ids[i])
				}
			}
		}
	}

	if len(missing) == 0 {
		return names, nil
	}

	products, err := c.Validate(ctx, missing)
	if err != nil {
		// Partial answers are fine here: names are presentation data and
		// callers render what they get.
		return names, err
	}
	for _, p := range products {
		names[p.ID] = p.Name
	}

	return names, nil
}

func (c *httpClient) cacheNames(ctx context.Context, products []Product) {
	if c.cache == nil {
		return
	}
	pipe := c.cache.Pipeline()
	for _, p := range products {
		pipe.Set(ctx, nameKey(p.ID), p.Name, c.nameTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog: failed to cache product names")
	}
}

func nameKey(id uuid.UUID) string {
	return "catalog:product:" + id.String() + ":name"
}
