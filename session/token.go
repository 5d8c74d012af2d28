package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var unverifiedParser = jwt.NewParser()

// TokenExpiry extracts the expiry claim from a cloud session token. The
// token is issued and verified by the cloud service; it is parsed here
// without signature verification purely to learn when a login will stop
// being accepted, which lets EnsureSession skip doomed network calls.
// ok is false when the token is not a JWT or carries no expiry.
func TokenExpiry(token string) (expiry time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiredLocally reports whether the session token is known to be past
// its expiry claim at now, with a safety leeway subtracted so a token
// about to lapse is treated as already expired. Tokens without a readable
// expiry are never reported expired locally; the cloud service remains
// the authority.
func (s *Session) ExpiredLocally(now time.Time, leeway time.Duration) bool {
	if s == nil || s.SessionID == "" {
		return true
	}
	exp, ok := TokenExpiry(s.SessionID)
	if !ok {
		return false
	}
	return !now.Before(exp.Add(-leeway))
}
