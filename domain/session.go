package domain

import (
	"context"
	"crypto/subtle"
)

// Credentials is the fixed username/password pair of the session gate.
type Credentials struct {
	Username string
	Password string
}

func DefaultCredentials() Credentials {
	return Credentials{Username: "admin", Password: "password"}
}

func (c Credentials) match(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password))
	return u&p == 1
}

// SessionGate keeps the persisted authentication flag. The username is
// the partition the flag, and the user's tasks, live under.
type SessionGate struct {
	slots Slots
	creds Credentials
}

func NewSessionGate(slots Slots, creds Credentials) *SessionGate {
	return &SessionGate{slots: slots, creds: creds}
}

// Login sets the flag when the credentials match. ok is false on a
// mismatch, which is not an error.
func (g *SessionGate) Login(ctx context.Context, username, password string) (userID string, ok bool, err error) {
	if !g.creds.match(username, password) {
		return "", false, nil
	}
	if err := g.Admit(ctx, username); err != nil {
		return "", false, err
	}
	return username, true, nil
}

// Admit sets the flag for a user whose identity was verified elsewhere,
// such as a token from an external identity provider.
func (g *SessionGate) Admit(ctx context.Context, userID string) error {
	return g.slots.Put(ctx, userID, AuthSlot, []byte("true"))
}

// Logout clears the flag.
func (g *SessionGate) Logout(ctx context.Context, userID string) error {
	return g.slots.Delete(ctx, userID, AuthSlot)
}

// Authenticated reads the flag. A missing flag means signed out.
func (g *SessionGate) Authenticated(ctx context.Context, userID string) (bool, error) {
	data, ok, err := g.slots.Get(ctx, userID, AuthSlot)
	if err != nil || !ok {
		return false, err
	}
	return string(data) == "true", nil
}
