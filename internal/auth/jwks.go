package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"
)

// JWKSCache fetches and caches the EC P-256 keys published by an upstream
// identity provider.  Fetches go through a circuit breaker so a dead
// provider fails sign-ups fast instead of stalling every request.
type JWKSCache struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	breaker    *gobreaker.CircuitBreaker[map[string]*ecdsa.PublicKey]

	mu      sync.RWMutex
	keys    map[string]*ecdsa.PublicKey
	fetched time.Time
}

// NewJWKSCache creates a cache for uri.  A nil client gets a 10s timeout and
// a zero ttl means 15 minutes.
func NewJWKSCache(uri string, client *http.Client, ttl time.Duration) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &JWKSCache{
		uri:        uri,
		httpClient: client,
		ttl:        ttl,
		keys:       make(map[string]*ecdsa.PublicKey),
		breaker: gobreaker.NewCircuitBreaker[map[string]*ecdsa.PublicKey](gobreaker.Settings{
			Name:    "jwks",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// GetKey returns the key for kid.  An empty kid is accepted when the set
// holds exactly one key.  A stale key is still served if a refresh fails.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := lookup(c.keys, kid)
	expired := time.Since(c.fetched) > c.ttl
	c.mu.RUnlock()

	if ok && !expired {
		return key, nil
	}

	keys, err := c.breaker.Execute(func() (map[string]*ecdsa.PublicKey, error) {
		return c.refreshKeys(ctx)
	})
	if err != nil {
		if ok {
			return key, nil
		}
		return nil, err
	}
	key, ok = lookup(keys, kid)
	if !ok {
		return nil, fmt.Errorf("key not found: %q", kid)
	}
	return key, nil
}

func lookup(keys map[string]*ecdsa.PublicKey, kid string) (*ecdsa.PublicKey, bool) {
	if kid == "" && len(keys) == 1 {
		for _, k := range keys {
			return k, true
		}
	}
	k, ok := keys[kid]
	return k, ok
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (c *JWKSCache) refreshKeys(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	c.mu.RLock()
	keys, fresh := c.keys, time.Since(c.fetched) < c.ttl && len(c.keys) > 0
	c.mu.RUnlock()
	if fresh {
		return keys, nil
	}

	// The lock is not held across the fetch; readers keep the stale set.
	keys, err := c.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys = keys
	c.fetched = time.Now()
	c.mu.Unlock()
	return keys, nil
}

func (c *JWKSCache) fetchKeys(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		pub, err := k.ecdsaKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable P-256 keys")
	}
	return keys, nil
}

func (k jwk) ecdsaKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.X, "="))
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.Y, "="))
	if err != nil {
		return nil, err
	}
	x, y := new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb)
	curve := elliptic.P256()
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("point is not on P-256")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// JWKSVerifier validates ES256 tokens issued by the upstream provider.
type JWKSVerifier struct {
	cache  *JWKSCache
	parser *jwt.Parser
}

// NewJWKSVerifier verifies against keys from cache.
func NewJWKSVerifier(cache *JWKSCache) *JWKSVerifier {
	return &JWKSVerifier{
		cache: cache,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// Verify implements Verifier.
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	mc := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(raw, mc, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.cache.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return Claims(mc), nil
}
