// Package cloudauth provides http.RoundTripper decorators that authenticate
// outbound webhook deliveries: static API keys, OAuth2 client credentials,
// GCP Application Default Credentials and AWS SigV4.
package cloudauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/eugener/boatload/internal/config"
)

// Wrap decorates base with the authentication scheme described by a. A nil a
// returns base unchanged.
func Wrap(ctx context.Context, a *config.WebhookAuth, base http.RoundTripper) (http.RoundTripper, error) {
	if a == nil {
		return base, nil
	}
	switch a.Type {
	case "api_key":
		header := a.Header
		if header == "" {
			header = "Authorization"
		}
		return &APIKeyTransport{Key: a.APIKey, HeaderName: header, Prefix: a.Prefix, Base: base}, nil
	case "oauth2":
		return NewClientCredentialsTransport(ctx, base, a.TokenURL, a.ClientID, a.ClientSecret, a.Scopes...), nil
	case "gcp":
		return NewGCPOAuthTransport(ctx, base, a.Scopes...)
	case "aws_sigv4":
		creds := aws.NewCredentialsCache(StaticCredentials(a.AccessKeyID, a.SecretAccessKey, a.SessionToken))
		return NewAWSSigV4Transport(base, creds, a.Region, a.Service), nil
	default:
		return nil, fmt.Errorf("cloudauth: unknown auth type %q", a.Type)
	}
}

// APIKeyTransport sets a static key header on every request. Prefix is
// prepended to Key, e.g. "Bearer ".
type APIKeyTransport struct {
	Key        string
	HeaderName string
	Prefix     string
	Base       http.RoundTripper
}

// RoundTrip clones the request and sets the key header.
func (t *APIKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(t.HeaderName, t.Prefix+t.Key)
	return baseOr(t.Base).RoundTrip(r2)
}

func baseOr(rt http.RoundTripper) http.RoundTripper {
	if rt != nil {
		return rt
	}
	return http.DefaultTransport
}
