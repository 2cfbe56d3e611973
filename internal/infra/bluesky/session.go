package bluesky

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// session holds the credentials returned by createSession/refreshSession.
type session struct {
	accessJwt  string
	refreshJwt string
	did        string
	handle     string
	expiry     time.Time
}

// expiringSoon reports whether the access token needs a refresh before the
// next authenticated call. Tokens without a readable exp claim are treated
// as long-lived and only replaced when the server rejects them.
func (s *session) expiringSoon(now time.Time) bool {
	if s.expiry.IsZero() {
		return false
	}
	return now.After(s.expiry.Add(-accessTokenSlack))
}

// accessTokenSlack refreshes slightly early so an in-flight call never
// crosses the expiry boundary.
const accessTokenSlack = 60 * time.Second

// tokenExpiry extracts the exp claim from an access token without verifying
// the signature; the token is ours, we only need its lifetime.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
