package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"plaza-relay/circuitbreaker"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var ctx = context.Background()

// Identity is the verified result of the token check. Every relay
// connection carries exactly one, assigned at handshake time.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type AuthError struct {
	Message string
	Code    int
}

func (e AuthError) Error() string {
	return e.Message
}

// Gate verifies bearer tokens against the external identity service.
// Verified tokens are optionally cached in Redis for a short TTL so
// that quick reconnects do not hammer the verifier.
type Gate struct {
	endpoint string
	client   *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewGate(endpoint string, cacheURL string, cacheSeconds int) *Gate {
	gate := &Gate{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		cacheTTL: time.Duration(cacheSeconds) * time.Second,
	}

	if cacheURL != "" {
		gate.cache = redis.NewClient(&redis.Options{
			Addr:     cacheURL,
			Password: "",
			DB:       0,
		})

		_, err := gate.cache.Ping(ctx).Result()
		if err != nil {
			log.WithError(err).Error("Failed to connect to token cache Redis")
			gate.cache = nil
		} else {
			log.Info("Connected to token cache Redis at ", cacheURL)
		}
	}

	return gate
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "relaytoken:" + hex.EncodeToString(sum[:])
}

func (g *Gate) Verify(token string) (Identity, AuthError) {
	if token == "" {
		return Identity{}, AuthError{"No token provided", http.StatusUnauthorized}
	}

	if cached, ok := g.cacheLookup(token); ok {
		return cached, AuthError{}
	}

	body, err := circuitbreaker.AuthBreaker.Execute(func() (string, error) {
		return g.fetch(token)
	})
	if err != nil {
		var authErr AuthError
		if errors.As(err, &authErr) {
			return Identity{}, authErr
		}
		return Identity{}, AuthError{"Failed to authorize", http.StatusInternalServerError}
	}

	var identity Identity
	if err := json.Unmarshal([]byte(body), &identity); err != nil {
		return Identity{}, AuthError{"Failed to decode auth response", http.StatusInternalServerError}
	}
	if identity.UserID == "" {
		return Identity{}, AuthError{"Auth response missing user id", http.StatusUnauthorized}
	}

	g.cacheStore(token, body)

	return identity, AuthError{}
}

func (g *Gate) fetch(token string) (string, error) {
	req, err := http.NewRequest("GET", g.endpoint, nil)
	if err != nil {
		return "", AuthError{"Failed to create auth request", http.StatusInternalServerError}
	}

	req.Header.Set("Authorization", "Bearer "+token)

	res, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", AuthError{"Failed to authorize", res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func (g *Gate) cacheLookup(token string) (Identity, bool) {
	if g.cache == nil {
		return Identity{}, false
	}

	body, err := circuitbreaker.CacheBreaker.Execute(func() (string, error) {
		return g.cache.Get(ctx, cacheKey(token)).Result()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Warn("Token cache lookup failed")
		}
		return Identity{}, false
	}

	var identity Identity
	if err := json.Unmarshal([]byte(body), &identity); err != nil || identity.UserID == "" {
		return Identity{}, false
	}

	return identity, true
}

func (g *Gate) cacheStore(token string, body string) {
	if g.cache == nil {
		return
	}

	err := g.cache.Set(ctx, cacheKey(token), body, g.cacheTTL).Err()
	if err != nil {
		log.WithError(err).Warn("Failed to cache verified token")
	}
}

// Guest returns the identity used when auth is disabled (local dev).
func Guest(connID string) Identity {
	short := connID
	if len(short) > 8 {
		short = short[:8]
	}

	return Identity{
		UserID:      "guest-" + short,
		DisplayName: "guest-" + short,
	}
}
