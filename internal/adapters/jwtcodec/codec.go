package jwtcodec

// Package jwtcodec signs and parses session tokens as HS256 JWTs.

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// MinKeyLength is the minimum accepted signing key size in bytes.
const MinKeyLength = 32

// Claims extends the registered JWT claims with session fields.
type Claims struct {
	jwt.RegisteredClaims
	Role  domainauth.Role `json:"role"`
	Email string          `json:"email,omitempty"`
	Name  string          `json:"name,omitempty"`
}

// Options configures a Codec.
type Options struct {
	Key    []byte
	Issuer string
	Now    func() time.Time // optional, defaults to time.Now
}

// Codec implements ports.TokenCodec using golang-jwt.
type Codec struct {
	key    []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// New constructs a Codec. The key must be at least MinKeyLength bytes.
func New(opts Options) (*Codec, error) {
	if len(opts.Key) < MinKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinKeyLength)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	// Expiry is decided by the caller's clock so expired tokens stay distinguishable from forged ones.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return &Codec{
		key:    append([]byte(nil), opts.Key...),
		issuer: opts.Issuer,
		now:    now,
		parser: parser,
	}, nil
}

// Issue signs a new session token for id valid for ttl.
func (c *Codec) Issue(id domainauth.Identity, ttl time.Duration) (domainauth.SessionToken, error) {
	if id.SubjectID == "" {
		return domainauth.SessionToken{}, errors.New("subject is required")
	}
	if !id.Role.Valid() {
		return domainauth.SessionToken{}, fmt.Errorf("cannot issue session for role %q", id.Role)
	}
	if ttl <= 0 {
		return domainauth.SessionToken{}, errors.New("ttl must be positive")
	}

	// JWT timestamps have second precision; truncate so the parsed token round-trips exactly.
	issued := c.now().UTC().Truncate(time.Second)
	expires := issued.Add(ttl).Truncate(time.Second)
	if !expires.After(issued) {
		expires = issued.Add(time.Second)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role:  id.Role,
		Email: id.Email,
		Name:  id.DisplayName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return domainauth.SessionToken{}, fmt.Errorf("signing session token: %w", err)
	}
	return toSessionToken(claims, signed), nil
}

// Parse verifies the signature and shape of raw. It does not reject expired tokens.
func (c *Codec) Parse(raw string) (domainauth.SessionToken, error) {
	if raw == "" {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token is empty")
	}
	var claims Claims
	tok, err := c.parser.ParseWithClaims(raw, &claims, func(_ *jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return domainauth.SessionToken{}, domainauth.WrapError(err, domainauth.KindMalformedSession, "session token is invalid")
	}
	if !tok.Valid {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token is invalid")
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token issuer mismatch")
	}
	if claims.Subject == "" {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token missing subject")
	}
	if !claims.Role.Valid() {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token carries unknown role")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "session token lifetime is invalid")
	}
	return toSessionToken(claims, raw), nil
}

func toSessionToken(c Claims, raw string) domainauth.SessionToken {
	return domainauth.SessionToken{
		ID:          c.ID,
		SubjectID:   c.Subject,
		Role:        c.Role,
		Email:       c.Email,
		DisplayName: c.Name,
		IssuedAt:    c.IssuedAt.Time.UTC(),
		ExpiresAt:   c.ExpiresAt.Time.UTC(),
		Raw:         raw,
	}
}
