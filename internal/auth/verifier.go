package auth

import (
	"VaultLedger/internal/ledger"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any token that cannot be verified.
var ErrInvalidCredential = errors.New("invalid credential")

// Principal is a verified caller identity together with the credential it
// was verified from. The credential is forwarded to the custodian as the
// owner's proof when funds leave an owner-held holding.
type Principal struct {
	ID         ledger.Identity
	Credential string
	ExpiresAt  time.Time
}

// Verifier checks HS256 bearer tokens whose subject is the caller identity.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, now: time.Now}
}

// WithClock overrides the verification clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify parses token and returns the principal named by its subject.
func (v *Verifier) Verify(_ context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: token is required", ErrInvalidCredential)
	}
	if len(v.secret) == 0 {
		return Principal{}, errors.New("verifier is not configured")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, fmt.Errorf("%w: subject is required", ErrInvalidCredential)
	}

	return Principal{
		ID:         ledger.Identity(claims.Subject),
		Credential: token,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Issuer mints tokens the Verifier accepts. Used by operators and tests.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for id.
func (i *Issuer) Issue(id ledger.Identity) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   string(id),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("%w: expected bearer token", ErrInvalidCredential)
	}
	return strings.TrimSpace(token), nil
}

type principalKey struct{}

// WithPrincipal attaches a verified principal to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
