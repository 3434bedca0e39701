package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/tier"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type countingProfiles struct {
	*MemoryProfileStore
	calls int
	err   error
}

func (c *countingProfiles) GetTier(ctx context.Context, userID string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.MemoryProfileStore.GetTier(ctx, userID)
}

func hmacToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"aud": "authenticated",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func newTestResolver(t *testing.T, profiles ProfileStore, cache *redis.Client) *Resolver {
	t.Helper()
	v, err := NewVerifier(testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return NewResolver(v, profiles, cache, zap.NewNop())
}

func TestResolve_NoCredentialIsAnonymous(t *testing.T) {
	r := newTestResolver(t, NewMemoryProfileStore(), nil)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		id, err := r.Resolve(context.Background(), header)
		if err != nil {
			t.Fatalf("header %q: unexpected error %v", header, err)
		}
		if id.UserID != AnonymousUserID || id.Tier != tier.Free {
			t.Errorf("header %q: expected anonymous free identity, got %+v", header, id)
		}
	}
}

func TestResolve_ValidTokenWithProfile(t *testing.T) {
	profiles := NewMemoryProfileStore()
	_ = profiles.SetTier(context.Background(), "user-1", "premium")
	r := newTestResolver(t, profiles, nil)

	id, err := r.Resolve(context.Background(), "Bearer "+hmacToken(t, "user-1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.UserID != "user-1" || id.Tier != tier.Premium {
		t.Errorf("Unexpected identity %+v", id)
	}
	if id.IsAnonymous() {
		t.Error("Expected authenticated identity")
	}
}

func TestResolve_MissingProfileDefaultsToFree(t *testing.T) {
	r := newTestResolver(t, NewMemoryProfileStore(), nil)

	id, err := r.Resolve(context.Background(), "Bearer "+hmacToken(t, "user-2", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.Tier != tier.Free {
		t.Errorf("Expected free tier, got %s", id.Tier)
	}
}

func TestResolve_ProfileErrorDefaultsToFree(t *testing.T) {
	profiles := &countingProfiles{MemoryProfileStore: NewMemoryProfileStore(), err: errors.New("db down")}
	r := newTestResolver(t, profiles, nil)

	id, err := r.Resolve(context.Background(), "Bearer "+hmacToken(t, "user-3", time.Now().Add(time.Hour)))
	if err != nil || id.Tier != tier.Free {
		t.Errorf("Expected free identity, got %+v, %v", id, err)
	}
}

func TestResolve_InvalidTokens(t *testing.T) {
	r := newTestResolver(t, NewMemoryProfileStore(), nil)

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()})
	wrongKeyStr, _ := wrongKey.SignedString([]byte("another-secret-another-secret-another"))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	noExpStr, _ := noExp.SignedString([]byte(testSecret))

	tests := map[string]string{
		"garbage":   "not.a.jwt",
		"expired":   hmacToken(t, "user-1", time.Now().Add(-time.Hour)),
		"wrong key": wrongKeyStr,
		"no expiry": noExpStr,
		"no sub":    hmacToken(t, "", time.Now().Add(time.Hour)),
	}
	for name, token := range tests {
		_, err := r.Resolve(context.Background(), "Bearer "+token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestResolve_WithoutVerifierAcceptsOnlyAnonymous(t *testing.T) {
	r := NewResolver(nil, NewMemoryProfileStore(), nil, zap.NewNop())

	id, err := r.Resolve(context.Background(), "")
	if err != nil || !id.IsAnonymous() || id.Tier != tier.Free {
		t.Errorf("Expected anonymous free identity, got %+v (%v)", id, err)
	}

	_, err = r.Resolve(context.Background(), "Bearer "+hmacToken(t, "user-1", time.Now().Add(time.Hour)))
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestResolve_CachesTier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	profiles := &countingProfiles{MemoryProfileStore: NewMemoryProfileStore()}
	_ = profiles.SetTier(context.Background(), "user-1", "pro")
	r := newTestResolver(t, profiles, rdb)

	header := "Bearer " + hmacToken(t, "user-1", time.Now().Add(time.Hour))
	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background(), header)
		if err != nil || id.Tier != tier.Pro {
			t.Fatalf("Unexpected identity %+v, %v", id, err)
		}
	}
	if profiles.calls != 1 {
		t.Errorf("Expected one profile lookup, got %d", profiles.calls)
	}
	if ttl := mr.TTL("tier:user-1"); ttl != tierCacheTTL {
		t.Errorf("Expected cache ttl %v, got %v", tierCacheTTL, ttl)
	}

	mr.FastForward(tierCacheTTL + time.Second)
	_, _ = r.Resolve(context.Background(), header)
	if profiles.calls != 2 {
		t.Errorf("Expected lookup after expiry, got %d calls", profiles.calls)
	}
}

func TestMiddleware(t *testing.T) {
	r := newTestResolver(t, NewMemoryProfileStore(), nil)
	var got Identity
	handler := NewMiddleware(r, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = IdentityFrom(req.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/interview/history", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || got.UserID != AnonymousUserID {
		t.Errorf("Expected anonymous pass-through, got %d %+v", rr.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/interview/history", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body["error"] != "Invalid or expired token" {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestIdentityFrom_Default(t *testing.T) {
	id := IdentityFrom(context.Background())
	if !id.IsAnonymous() || id.Tier != tier.Free {
		t.Errorf("Expected anonymous default, got %+v", id)
	}
}

func TestVerifier_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer server.Close()

	v, err := NewVerifier("", server.URL)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-rsa",
		"exp": time.Now().Add(10 * time.Minute).Unix(),
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	sub, err := v.Verify(signed)
	if err != nil || sub != "user-rsa" {
		t.Errorf("Expected user-rsa, got %q, %v", sub, err)
	}

	if _, err := v.Verify(hmacToken(t, "user-1", time.Now().Add(time.Hour))); err == nil {
		t.Error("Expected HMAC token to be rejected without a secret")
	}
}

func TestNewVerifier_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewVerifier("", ""); err == nil {
		t.Error("Expected error without secret or JWKS URL")
	}
}

func TestSignDevToken(t *testing.T) {
	token, err := SignDevToken(testSecret, "dev-user", time.Hour)
	if err != nil {
		t.Fatalf("SignDevToken failed: %v", err)
	}
	v, _ := NewVerifier(testSecret, "")
	sub, err := v.Verify(token)
	if err != nil || sub != "dev-user" {
		t.Errorf("Expected dev-user, got %q, %v", sub, err)
	}
}

type mockRow struct {
	tier *string
	err  error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	*(dest[0].(**string)) = m.tier
	return nil
}

type mockDB struct {
	row      *mockRow
	execSQL  string
	execArgs []any
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.row
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = sql
	m.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresProfileStore(t *testing.T) {
	premium := "premium"
	db := &mockDB{row: &mockRow{tier: &premium}}
	s := NewPostgresProfileStore(db)

	got, err := s.GetTier(context.Background(), "u1")
	if err != nil || got != "premium" {
		t.Errorf("Expected premium, got %q, %v", got, err)
	}

	db.row = &mockRow{err: pgx.ErrNoRows}
	if _, err := s.GetTier(context.Background(), "u1"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got %v", err)
	}

	db.row = &mockRow{tier: nil}
	if _, err := s.GetTier(context.Background(), "u1"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound for null tier, got %v", err)
	}

	if err := s.SetTier(context.Background(), "u1", "pro"); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	if len(db.execArgs) != 2 || db.execArgs[1] != "pro" {
		t.Errorf("Unexpected exec args %v", db.execArgs)
	}
}
