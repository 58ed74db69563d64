package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	sessionIssuer       = "taskflow"
)

// Auth issues session tokens after a successful login and validates
// bearer tokens. Session tokens are HS256; when JWKS is set, RS256 tokens
// from an external identity provider are accepted as well.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	secret      []byte
	sessionTTL  time.Duration
	now         func() time.Time
	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. jwks may be nil.
func NewAuth(secret []byte, sessionTTL time.Duration, jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: session secret is empty")
	}
	methods := []string{"HS256"}
	if jwks != nil {
		methods = append(methods, "RS256")
	}
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		secret:      secret,
		sessionTTL:  sessionTTL,
		now:         time.Now,
		parser:      jwt.NewParser(jwt.WithValidMethods(methods)),
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// Issue signs a session token for userID.
func (a *Auth) Issue(userID string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.sessionTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": sessionIssuer,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer extracts the user identifier from a raw bearer token.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}

	parsedToken, err := a.parser.Parse(token, a.keyForToken)
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}
	if _, session := parsedToken.Method.(*jwt.SigningMethodHMAC); session {
		if !claims.VerifyIssuer(sessionIssuer, true) {
			return "", errors.New("invalid issuer")
		}
	} else {
		if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
			return "", errors.New("invalid audience")
		}
		if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
			return "", errors.New("invalid issuer")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}

	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		return a.secret, nil
	}
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
