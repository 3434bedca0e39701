package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/tier"
)

// AnonymousUserID identifies every request made without a credential.
const AnonymousUserID = "anonymous"

const tierCacheTTL = 5 * time.Minute

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrProfileNotFound = errors.New("profile not found")
)

// Identity is resolved fresh for every request.
type Identity struct {
	UserID string
	Tier   tier.Name
}

func Anonymous() Identity {
	return Identity{UserID: AnonymousUserID, Tier: tier.Free}
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == "" || i.UserID == AnonymousUserID
}

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ProfileStore looks up a user's subscription tier.
type ProfileStore interface {
	GetTier(ctx context.Context, userID string) (string, error)
}

// cachedTier is the Redis representation of a tier lookup.
type cachedTier struct {
	Tier string `json:"tier"`
}

func (c *cachedTier) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

func (c *cachedTier) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

type Resolver struct {
	verifier TokenVerifier
	profiles ProfileStore
	cache    *redis.Client
	logger   *zap.Logger
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(verifier TokenVerifier, profiles ProfileStore, cache *redis.Client, logger *zap.Logger) *Resolver {
	return &Resolver{verifier: verifier, profiles: profiles, cache: cache, logger: logger}
}

// Resolve maps an Authorization header value to an identity. A missing
// bearer token resolves to the anonymous free-tier identity.
func (r *Resolver) Resolve(ctx context.Context, authHeader string) (Identity, error) {
	token, ok := bearerToken(authHeader)
	if !ok {
		return Anonymous(), nil
	}
	if r.verifier == nil {
		return Identity{}, fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
	}

	userID, err := r.verifier.Verify(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{UserID: userID, Tier: tier.Parse(r.lookupTier(ctx, userID))}, nil
}

// lookupTier falls back to free when the profile is missing or unreadable.
func (r *Resolver) lookupTier(ctx context.Context, userID string) string {
	key := fmt.Sprintf("tier:%s", userID)

	if r.cache != nil {
		var c cachedTier
		err := r.cache.Get(ctx, key).Scan(&c)
		if err == nil {
			return c.Tier
		} else if err != redis.Nil {
			r.logger.Warn("tier cache read failed", zap.Error(err))
		}
	}

	if r.profiles == nil {
		return string(tier.Free)
	}
	name, err := r.profiles.GetTier(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			r.logger.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
			return string(tier.Free)
		}
		name = string(tier.Free)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, key, &cachedTier{Tier: name}, tierCacheTTL).Err()
	}
	return name
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const identityKey contextKey = "identity"

// NewMiddleware resolves the caller and stores the identity on the request
// context. Invalid credentials are rejected with 401.
func NewMiddleware(resolver *Resolver, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				logger.Info("auth failure", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the request identity, or the anonymous identity when
// none was resolved.
func IdentityFrom(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Anonymous()
}
