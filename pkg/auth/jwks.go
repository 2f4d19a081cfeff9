package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSClientInterface is the token validation surface the middleware depends
// on, kept narrow so tests can substitute a stub.
type JWKSClientInterface interface {
	// ValidateToken checks a compact JWT string and returns its claims.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases resources held by the client.
	Close()
}

// JWKSConfig controls how bearer tokens are checked.
type JWKSConfig struct {
	// EnableVerification turns real signature checks on. When false the
	// engine runs in dev mode and accepts any well-formed token.
	EnableVerification bool
	// JWKSEndpoints maps trusted issuer URLs to the JWKS URL serving their
	// public keys. Tokens from any other issuer are rejected.
	JWKSEndpoints map[string]string
}

// JWKSClient verifies RS256 bearer tokens against the key sets published by
// the configured issuers. keyfunc keeps each set refreshed in the background.
type JWKSClient struct {
	verify   bool
	keyfuncs map[string]keyfunc.Keyfunc
	insecure *jwt.Parser
}

// NewJWKSClient builds a client from cfg. With verification enabled it
// fetches every configured key set up front, so a bad endpoint fails at
// startup rather than on the first request.
func NewJWKSClient(cfg *JWKSConfig) (*JWKSClient, error) {
	c := &JWKSClient{
		verify:   cfg.EnableVerification,
		keyfuncs: make(map[string]keyfunc.Keyfunc, len(cfg.JWKSEndpoints)),
		insecure: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
	if !c.verify {
		return c, nil
	}

	for issuer, jwksURL := range cfg.JWKSEndpoints {
		kf, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		c.keyfuncs[issuer] = kf
	}

	return c, nil
}

// ValidateToken parses tokenString and returns its claims. In dev mode the
// signature is not checked and expired tokens pass. Otherwise the token must
// be RS256-signed by a key from its issuer's key set and carry valid
// registered claims.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	if !c.verify {
		token, _, err := c.insecure.ParseUnverified(tokenString, &Claims{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
		return claimsOf(token)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, c.selectKey,
		jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	return claimsOf(token)
}

// selectKey resolves the verification key for a token by its issuer claim.
func (c *JWKSClient) selectKey(token *jwt.Token) (interface{}, error) {
	claims, err := claimsOf(token)
	if err != nil {
		return nil, err
	}

	kf, ok := c.keyfuncs[claims.Issuer]
	if !ok {
		return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}

	return kf.KeyfuncCtx(context.Background())(token)
}

// claimsOf narrows token.Claims back to *Claims.
func claimsOf(token *jwt.Token) (*Claims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// Close is a no-op today. keyfunc v3 manages its own refresh goroutines.
func (c *JWKSClient) Close() {}

var _ JWKSClientInterface = (*JWKSClient)(nil)
