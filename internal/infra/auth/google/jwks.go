package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	jwksCacheTTL     = 10 * time.Minute
	jwksMaxStale     = 30 * time.Minute
	jwksFetchTimeout = 5 * time.Second
)

var errKeyNotFound = errors.New("signing key not found")

// jwksCache holds Google's RSA verification keys keyed by kid. A fresh hit is
// served directly; a stale hit is served while a background refresh runs, so
// sign-in keeps working through brief JWKS endpoint outages. Concurrent cache
// misses share a single fetch.
type jwksCache struct {
	url        string
	httpClient *http.Client
	now        func() time.Time

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	freshUntil time.Time
	staleUntil time.Time

	refreshGroup singleflight.Group
}

func newJWKSCache(url string, client *http.Client) *jwksCache {
	return &jwksCache{
		url:        url,
		httpClient: client,
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errKeyNotFound
	}

	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := c.now().Before(c.freshUntil)
	stale := !fresh && c.now().Before(c.staleUntil)
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if ok && stale {
		go func() { _ = c.refresh(context.Background()) }()
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, errKeyNotFound
}

// refresh fetches once per cohort of waiters; followers share the leader's
// result instead of stampeding the endpoint.
func (c *jwksCache) refresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan("jwks", func() (any, error) {
		return nil, c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *jwksCache) fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("jwks fetch failed")
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable keys")
	}

	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.freshUntil = now.Add(jwksCacheTTL)
	c.staleUntil = now.Add(jwksCacheTTL + jwksMaxStale)
	c.mu.Unlock()
	return nil
}

func rsaKeyFromJWK(nB64, eB64 string) (*rsa.PublicKey, error) {
	if nB64 == "" || eB64 == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 0 || e > int64(^uint32(0)) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e)}, nil
}
