package entitlement

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the signed entitlement cookie. It carries the plan state for
// browsers that are not (yet) linked to a durable account and is strictly
// lower trust than the account record.
const CookieName = "sb_ent"

// UsageCookieName carries the day:words usage hint shown to the client. It
// is advisory only; the counter store stays authoritative.
const UsageCookieName = "sb_usage"

// DefaultCookieTTL bounds how long a pro cookie keeps working without being
// refreshed by a new checkout confirmation.
const DefaultCookieTTL = 30 * 24 * time.Hour

// ErrNoCookie is returned when no valid entitlement cookie is present
var ErrNoCookie = errors.New("no entitlement cookie")

// Cookie is the decoded entitlement cookie payload
type Cookie struct {
	Pro            bool   `json:"pro"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type cookieClaims struct {
	Pro            bool   `json:"pro"`
	CustomerID     string `json:"cus,omitempty"`
	SubscriptionID string `json:"sub_id,omitempty"`
	jwt.RegisteredClaims
}

// CookieCodec signs and verifies entitlement cookies
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewCookieCodec creates a codec signing with the given secret. Secure
// controls the cookie Secure attribute (off for local development).
func NewCookieCodec(secret string, secure bool) *CookieCodec {
	return &CookieCodec{
		secret: []byte(secret),
		ttl:    DefaultCookieTTL,
		secure: secure,
	}
}

// Issue writes a signed entitlement cookie to the response
func (c *CookieCodec) Issue(w http.ResponseWriter, value Cookie) error {
	now := time.Now()
	claims := cookieClaims{
		Pro:            value.Pro,
		CustomerID:     value.CustomerID,
		SubscriptionID: value.SubscriptionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return fmt.Errorf("failed to sign entitlement cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read parses and verifies the entitlement cookie on a request. A missing,
// expired or tampered cookie yields ErrNoCookie; callers treat all of those
// as "no entitlement signal".
func (c *CookieCodec) Read(r *http.Request) (*Cookie, error) {
	raw, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrNoCookie
	}

	token, err := jwt.ParseWithClaims(raw.Value, &cookieClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrNoCookie
	}

	claims, ok := token.Claims.(*cookieClaims)
	if !ok || !token.Valid {
		return nil, ErrNoCookie
	}

	return &Cookie{
		Pro:            claims.Pro,
		CustomerID:     claims.CustomerID,
		SubscriptionID: claims.SubscriptionID,
	}, nil
}

// Clear expires the entitlement cookie (sign-out)
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
