// Package auth provides request signing for the reporting APIs.
package auth

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

const (
	// AppStoreAudience is the audience claim App Store Connect expects.
	AppStoreAudience = "appstoreconnect-v1"

	// App Store Connect rejects tokens that live longer than 20 minutes.
	appStoreTokenTTL = 20 * time.Minute
	// Tokens are refreshed this long before they expire.
	refreshSkew = time.Minute
)

// TokenSource yields bearer tokens for outgoing requests.
type TokenSource interface {
	Token() (string, error)
}

// AppStoreTokenSource signs short-lived ES256 tokens with an App Store
// Connect API key and caches each one until shortly before it expires.
// It is safe for concurrent use.
type AppStoreTokenSource struct {
	keyID    string
	issuerID string
	key      jwk.Key
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppStoreTokenSource parses a PEM encoded PKCS#8 EC private key.
func NewAppStoreTokenSource(keyID, issuerID string, pemKey []byte) (*AppStoreTokenSource, error) {
	if keyID == "" || issuerID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "key id and issuer id are required")
	}
	key, err := jwk.ParseKey(pemKey, jwk.WithPEM(true))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to parse private key")
	}
	if key.KeyType() != "EC" {
		return nil, errors.Newf(errors.ErrorTypeAuthentication, "private key must be an EC key, got %s", key.KeyType())
	}
	return &AppStoreTokenSource{
		keyID:    keyID,
		issuerID: issuerID,
		key:      key,
		now:      time.Now,
	}, nil
}

// LoadAppStoreTokenSource builds a token source from inline PEM or, when that
// is empty, from the key file at keyPath.
func LoadAppStoreTokenSource(keyID, issuerID, keyPath, inlinePEM string) (*AppStoreTokenSource, error) {
	pemKey := []byte(strings.TrimSpace(inlinePEM))
	if len(pemKey) == 0 {
		data, err := os.ReadFile(keyPath) //nolint:gosec // G304: path comes from configuration
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read private key file")
		}
		pemKey = data
	}
	return NewAppStoreTokenSource(keyID, issuerID, pemKey)
}

// Token returns a cached token, signing a new one when the cached token is
// within a minute of expiry.
func (s *AppStoreTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshSkew).Before(s.expiresAt) {
		return s.token, nil
	}

	expiresAt := now.Add(appStoreTokenTTL)
	tok, err := jwt.NewBuilder().
		Issuer(s.issuerID).
		IssuedAt(now).
		Expiration(expiresAt).
		Audience([]string{AppStoreAudience}).
		Build()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to build token")
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, s.keyID); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to set key id header")
	}
	if err := headers.Set(jws.TypeKey, "JWT"); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to set type header")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, s.key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to sign token")
	}

	s.token = string(signed)
	s.expiresAt = expiresAt
	return s.token, nil
}

// Authorize sets the bearer token on req.
func Authorize(req *http.Request, ts TokenSource) error {
	token, err := ts.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
