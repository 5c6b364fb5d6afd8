// Package token issues and verifies compact, audience-bound auth tokens.
//
// Tokens are HS256 JWS objects carrying only the registered "sub" and "aud"
// claims. They have no expiry: a token stays valid for as long as the signing
// secret that issued it.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	// SecretSize is the size of a freshly generated signing secret.
	SecretSize = 32

	keyInfo = "ready-layer-two/token/v1"
)

var (
	// ErrMalformed is returned for text that is not a well-formed token.
	ErrMalformed = errors.New("malformed token")
	// ErrSignatureInvalid is returned when the integrity tag does not match.
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Token holds the claims of a parsed token.
type Token struct {
	Subject  string
	Audience string
}

// NewSecret returns a signing secret read from a cryptographically secure source.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return secret, nil
}

// Codec issues and verifies tokens under a single secret.
type Codec struct {
	key []byte
}

// NewCodec derives the HMAC key from secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty token secret")
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Issue signs a token for subject, to be presented to audience.
func (c *Codec) Issue(subject, audience string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Audience: jwt.ClaimStrings{audience},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Verify recomputes the integrity tag of text and compares it to the token's tag.
func (c *Codec) Verify(text string) error {
	_, err := newParser().ParseWithClaims(text, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return nil
}

// Parse decodes the claims of text without checking its tag.
func Parse(text string) (*Token, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := newParser().ParseUnverified(text, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] == "" {
		return nil, fmt.Errorf("%w: expected a single audience", ErrMalformed)
	}

	return &Token{
		Subject:  claims.Subject,
		Audience: claims.Audience[0],
	}, nil
}

func newParser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
}
