package searchads

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func TestNormalizeCustomerID(t *testing.T) {
	assert.Equal(t, "1234567890", NormalizeCustomerID(" 123-456-7890 "))
	assert.Equal(t, "1234567890", NormalizeCustomerID("1234567890"))
}

func TestClient_SearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType errors.ErrorType
		wantMsg  string
	}{
		{"structured", http.StatusBadRequest, `{"error":{"code":400,"message":"Invalid query","status":"INVALID_ARGUMENT"}}`, errors.ErrorTypeValidation, "INVALID_ARGUMENT: Invalid query"},
		{"plain body", http.StatusNotFound, "no such customer", errors.ErrorTypeNotFound, "no such customer"},
		{"empty body", http.StatusBadGateway, "", errors.ErrorTypeRemote, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, "dev", "", server.Client(), staticToken("tok"), testutil.TestLogger(t))
			_, err := client.Search(testutil.TestContext(t), "123-456-7890", "SELECT", "")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "1234567890", apiErr.CustomerID)
			assert.Equal(t, tt.wantType, errors.TypeOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_SearchOmitsEmptyLoginHeader(t *testing.T) {
	var seen http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "dev", "", server.Client(), staticToken("tok"), nil)
	page, err := client.Search(testutil.TestContext(t), "1", "SELECT", "")
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Empty(t, page.NextPageToken)
	assert.Equal(t, "Bearer tok", seen.Get("Authorization"))
	assert.Equal(t, "dev", seen.Get("developer-token"))
	assert.Empty(t, seen.Values("login-customer-id"))
}
