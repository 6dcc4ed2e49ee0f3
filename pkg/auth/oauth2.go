package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// RefreshTokenSource exchanges a long-lived OAuth2 refresh token for access
// tokens, caching each until it expires.
type RefreshTokenSource struct {
	ts oauth2.TokenSource
}

// NewRefreshTokenSource builds a refresh-token flow against tokenURL. A nil
// httpClient uses http.DefaultClient for token requests.
func NewRefreshTokenSource(ctx context.Context, clientID, clientSecret, tokenURL, refreshToken string, httpClient *http.Client) *RefreshTokenSource {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return &RefreshTokenSource{
		ts: cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}),
	}
}

// Token returns a valid access token.
func (s *RefreshTokenSource) Token() (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "token refresh rejected")
		}
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "token refresh failed")
	}
	return tok.AccessToken, nil
}
