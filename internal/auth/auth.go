package auth

import (
	"net/http"
	"strconv"
	"strings"

	"crypto-price-alerts/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier turns HS256 bearer tokens into principals
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks the signature and expiry and reads the owner id from the
// "id" claim, falling back to "sub".
func (v *Verifier) Verify(tokenString string) (*types.Principal, error) {
	if !v.Enabled() {
		return nil, errors.Wrap(ErrInvalidToken, "no signing secret configured")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidToken, "%v", err)
	}

	ownerID, ok := ownerFromClaims(claims)
	if !ok {
		return nil, errors.Wrap(ErrInvalidToken, "token carries no numeric owner id")
	}

	return &types.Principal{OwnerID: ownerID}, nil
}

// FromRequest returns nil without error when the request carries no token.
// A token that is present but does not verify is an error.
func (v *Verifier) FromRequest(r *http.Request) (*types.Principal, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, nil
	}
	if !v.Enabled() {
		log.Debug("Token presented but AUTH_JWT_SECRET is unset, treating client as anonymous")
		return nil, nil
	}
	return v.Verify(token)
}

// TokenFromRequest looks at the "token" query parameter, the Authorization
// bearer header and the "token" cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}

	return ""
}

func ownerFromClaims(claims jwt.MapClaims) (int64, bool) {
	for _, key := range []string{"id", "sub"} {
		switch value := claims[key].(type) {
		case float64:
			if value > 0 && value == float64(int64(value)) {
				return int64(value), true
			}
		case string:
			if id, err := strconv.ParseInt(value, 10, 64); err == nil && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}
