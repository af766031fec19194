package cloudauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"
)

// TokenTransport injects a bearer token from an oauth2.TokenSource. Tokens
// are cached until they expire.
type TokenTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// NewTokenTransport wraps ts in a reusing source.
func NewTokenTransport(base http.RoundTripper, ts oauth2.TokenSource) *TokenTransport {
	return &TokenTransport{base: base, source: oauth2.ReuseTokenSource(nil, ts)}
}

// NewClientCredentialsTransport authenticates with the OAuth2 client
// credentials grant against tokenURL. The token endpoint is called with the
// default HTTP client, not base.
func NewClientCredentialsTransport(ctx context.Context, base http.RoundTripper, tokenURL, clientID, clientSecret string, scopes ...string) *TokenTransport {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return NewTokenTransport(base, cc.TokenSource(ctx))
}

// NewGCPOAuthTransport uses Application Default Credentials, e.g. for a
// Cloud Run or Cloud Functions receiver.
func NewGCPOAuthTransport(ctx context.Context, base http.RoundTripper, scopes ...string) (*TokenTransport, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("cloudauth: find GCP credentials: %w", err)
	}
	return NewTokenTransport(base, creds.TokenSource), nil
}

// RoundTrip obtains a token and sets the Authorization header.
func (t *TokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("cloudauth: obtain token: %w", err)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return baseOr(t.base).RoundTrip(r2)
}
