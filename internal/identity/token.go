package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/egt-labs/egt-gpt/internal/auth"
	"github.com/egt-labs/egt-gpt/internal/store/redisstore"
)

// TokenResolver verifies the Authorization bearer token. Verified principals
// are cached in Redis keyed by token hash so hot tokens skip the parse.
type TokenResolver struct {
	secret string
	cache  *redisstore.Store
	ttl    time.Duration
}

func NewTokenResolver(secret string, cache *redisstore.Store, ttl time.Duration) *TokenResolver {
	return &TokenResolver{secret: secret, cache: cache, ttl: ttl}
}

func (r *TokenResolver) Resolve(ctx context.Context, headers http.Header) (*Principal, error) {
	raw := headers.Get("Authorization")
	if raw == "" || !strings.HasPrefix(raw, "Bearer ") {
		return nil, ErrUnauthorized
	}
	token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if token == "" {
		return nil, ErrUnauthorized
	}

	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])

	if r.cache != nil {
		if data, err := r.cache.GetPrincipal(ctx, hash); err == nil {
			var p Principal
			if json.Unmarshal(data, &p) == nil && p.ID != "" {
				return &p, nil
			}
		} else if err != redis.Nil {
			// cache down: fall through to verification
		}
	}

	claims, err := auth.ParseJWT(token, r.secret)
	if err != nil {
		return nil, ErrUnauthorized
	}

	p := &Principal{ID: claims.Subject, Name: claims.Name, Provider: "jwt"}

	if r.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = r.cache.SetPrincipal(ctx, hash, data, r.ttl)
		}
	}
	return p, nil
}
