// Package auth authenticates ingest clients by bearer token. Tokens are
// configured statically and held only as SHA-256 hashes.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/config"
)

// TokenAuth resolves "Authorization: Bearer <token>" to a relay.Client.
type TokenAuth struct {
	clients map[string]entry // keyed by token hash
}

type entry struct {
	hash   string
	client *relay.Client
}

// NewTokenAuth builds an authenticator from hashed token entries, as
// returned by config.AuthConfig.TokenHashes.
func NewTokenAuth(entries map[string]config.TokenEntry) *TokenAuth {
	clients := make(map[string]entry, len(entries))
	for hash, e := range entries {
		clients[hash] = entry{hash: hash, client: &relay.Client{Name: e.Name, RPMLimit: e.RPMLimit}}
	}
	return &TokenAuth{clients: clients}
}

// Authenticate returns the client owning the request's bearer token, or
// relay.ErrUnauthorized.
func (a *TokenAuth) Authenticate(_ context.Context, r *http.Request) (*relay.Client, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, relay.ErrUnauthorized
	}
	hash := relay.HashToken(raw)
	e, ok := a.clients[hash]
	if !ok || subtle.ConstantTimeCompare([]byte(e.hash), []byte(hash)) != 1 {
		return nil, relay.ErrUnauthorized
	}
	return e.client, nil
}

// Len returns the number of configured tokens.
func (a *TokenAuth) Len() int { return len(a.clients) }
