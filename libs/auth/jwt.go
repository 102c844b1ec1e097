package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/httpx"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by access tokens issued by the identity provider.
type Claims struct {
	ArtistID string `json:"artist_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity maps verified claims to the headers forwarded to services.
func (c *Claims) Identity() httpx.Identity {
	role := strings.ToLower(strings.TrimSpace(c.Role))
	switch role {
	case httpx.RoleArtist, httpx.RoleAdmin:
	default:
		role = httpx.RoleCustomer
	}
	return httpx.Identity{UserID: c.Subject, ArtistID: c.ArtistID, Role: role}
}

// Verifier checks HS256 tokens with a shared secret and, when a JWKS client is
// configured, RS256 tokens by key id.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	leeway time.Duration
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: []byte(secret), jwks: jwks, leeway: 30 * time.Second}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 secret not configured")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("rs256 tokens require jwks")
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
