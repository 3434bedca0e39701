package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Verifier validates Supabase access tokens. HMAC tokens are checked against
// the project secret; asymmetric tokens against the project's JWKS.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewVerifier needs at least one of secret or jwksURL.
func NewVerifier(secret, jwksURL string) (*Verifier, error) {
	if secret == "" && jwksURL == "" {
		return nil, errors.New("a JWT secret or JWKS URL must be set")
	}

	v := &Verifier{secret: []byte(secret)}
	methods := []string{}
	if secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}
	if jwksURL != "" {
		kf, err := keyfunc.NewDefault([]string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		v.jwks = kf
		methods = append(methods, jwt.SigningMethodRS256.Name, jwt.SigningMethodES256.Name)
	}

	v.parser = jwt.NewParser(
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(methods),
	)
	return v, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, errors.New("asymmetric tokens not accepted")
	}
	return v.jwks.Keyfunc(token)
}

// Verify returns the token's subject.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := v.parser.Parse(tokenString, v.keyFor)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing sub")
	}
	return sub, nil
}

// SignDevToken issues an HS256 token for local development.
func SignDevToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{"authenticated"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
