package searchads

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/pool"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

type fakeAds struct {
	server        *httptest.Server
	tokenRequests atomic.Int32
	searches      atomic.Int32
	lastQuery     atomic.Value
	lastLogin     atomic.Value
	failCustomer  string
}

// newFakeAds serves an OAuth2 token endpoint and a search endpoint. Customer
// 1112223333 has two pages, every other customer one.
func newFakeAds(t *testing.T) *fakeAds {
	f := &fakeAds{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			f.tokenRequests.Add(1)
			_ = r.ParseForm()
			if r.PostForm.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`)
			return
		}

		if r.Header.Get("Authorization") != "Bearer access-1" || r.Header.Get("developer-token") != "dev-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":401,"message":"bad credentials","status":"UNAUTHENTICATED"}}`)
			return
		}
		f.searches.Add(1)
		f.lastLogin.Store(r.Header.Get("login-customer-id"))

		customer := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v21/customers/"), "/googleAds:search")
		body, _ := io.ReadAll(r.Body)
		f.lastQuery.Store(string(body))

		if customer == f.failCustomer {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":403,"message":"customer not enabled","status":"PERMISSION_DENIED"}}`)
			return
		}

		result := func(clicks int) string {
			return fmt.Sprintf(`{"metrics":{"clicks":"%d","impressions":"100"},"customer":{"id":%q},"segments":{"date":"2024-01-02"}}`, clicks, customer)
		}
		switch {
		case customer == "1112223333" && !strings.Contains(string(body), "page-2"):
			_, _ = io.WriteString(w, `{"results":[`+result(1)+`],"nextPageToken":"page-2"}`)
		case customer == "1112223333":
			_, _ = io.WriteString(w, `{"results":[`+result(2)+`]}`)
		default:
			_, _ = io.WriteString(w, `{"results":[`+result(3)+`]}`)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newSourceConfig(serverURL string) *config.BaseConfig {
	cfg := config.NewBaseConfig("searchads-test", ConnectorName)
	cfg.Reliability.RetryAttempts = 0
	cfg.Security.Credentials = map[string]string{
		"developer_token":   "dev-token",
		"client_id":         "client",
		"client_secret":     "secret",
		"refresh_token":     "refresh-1",
		"customer_ids":      "111-222-3333, 4445556666",
		"login_customer_id": "999-000-1111",
		"reports":           "asset_report_daily",
		"start_date":        "2024-01-01",
		"end_date":          "2024-01-31",
		"base_url":          serverURL + "/v21",
		"token_url":         serverURL + "/token",
	}
	return cfg
}

func newInitializedSource(t *testing.T, cfg *config.BaseConfig) *Source {
	src, err := NewSource("searchads-test", cfg)
	require.NoError(t, err)
	require.NoError(t, src.Initialize(testutil.TestContext(t), cfg))
	t.Cleanup(func() { _ = src.Close(testutil.TestContext(t)) })
	return src.(*Source)
}

func drain(t *testing.T, src *Source) ([]*pool.Record, error) {
	t.Helper()
	stream, err := src.Read(testutil.TestContext(t))
	require.NoError(t, err)

	var records []*pool.Record
	for record := range stream.Records {
		records = append(records, record)
	}
	var streamErr error
	for err := range stream.Errors {
		streamErr = err
	}
	return records, streamErr
}

func TestSource_Read(t *testing.T) {
	fake := newFakeAds(t)
	src := newInitializedSource(t, newSourceConfig(fake.server.URL))

	schemas, err := src.Discover(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "asset_report_daily", schemas[0].Name)

	records, err := drain(t, src)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, records[i].Data["clicks"])
		assert.Equal(t, int64(100), records[i].Data["impressions"])
		assert.Equal(t, "asset_report_daily", records[i].Metadata.Table)
		assert.Equal(t, "2024-01-02", records[i].Metadata.Custom["processing_date"])
	}
	assert.Equal(t, int64(1112223333), records[0].Data["customer_id"])
	assert.Equal(t, int64(4445556666), records[2].Data["customer_id"])

	assert.EqualValues(t, 3, fake.searches.Load())
	assert.EqualValues(t, 1, fake.tokenRequests.Load(), "access token is cached")
	assert.Equal(t, "9990001111", fake.lastLogin.Load())
	assert.Contains(t, fake.lastQuery.Load(), "BETWEEN '2024-01-01' AND '2024-01-31'")

	assert.EqualValues(t, 3, src.Metrics()["http_requests"])
}

func TestSource_ReadFailsFast(t *testing.T) {
	fake := newFakeAds(t)
	fake.failCustomer = "1112223333"
	src := newInitializedSource(t, newSourceConfig(fake.server.URL))

	records, err := drain(t, src)
	require.Error(t, err)
	assert.Empty(t, records)
	assert.Equal(t, errors.ErrorTypeAuthentication, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "customer not enabled")
	assert.EqualValues(t, 1, fake.searches.Load(), "later customers are not queried")
}

func TestSource_ReadRejectedRefreshToken(t *testing.T) {
	fake := newFakeAds(t)
	cfg := newSourceConfig(fake.server.URL)
	cfg.Security.Credentials["refresh_token"] = "revoked"
	src := newInitializedSource(t, cfg)

	_, err := drain(t, src)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeAuthentication, errors.TypeOf(err))
	assert.Zero(t, fake.searches.Load())
}

func TestSource_ReadBatch(t *testing.T) {
	fake := newFakeAds(t)
	cfg := newSourceConfig(fake.server.URL)
	cfg.Security.Credentials["reports"] = ""
	src := newInitializedSource(t, cfg)

	stream, err := src.ReadBatch(testutil.TestContext(t), 2)
	require.NoError(t, err)

	var tables []string
	total := 0
	for batch := range stream.Batches {
		require.NotEmpty(t, batch)
		assert.LessOrEqual(t, len(batch), 2)
		for _, r := range batch {
			assert.Equal(t, batch[0].Metadata.Table, r.Metadata.Table)
		}
		tables = append(tables, batch[0].Metadata.Table)
		total += len(batch)
	}
	for err := range stream.Errors {
		require.NoError(t, err)
	}
	assert.Equal(t, 6, total)
	assert.Equal(t, []string{"asset_report_daily", "asset_report_daily", "ad_report_daily", "ad_report_daily"}, tables)
}

func TestSource_InitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing developer token", func(m map[string]string) { delete(m, "developer_token") }, "developer_token is required"},
		{"missing customers", func(m map[string]string) { m["customer_ids"] = " , " }, "customer_id"},
		{"unknown report", func(m map[string]string) { m["reports"] = "keyword_report" }, "unsupported report"},
		{"bad date", func(m map[string]string) { m["start_date"] = "01/02/2024" }, "invalid start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newSourceConfig("http://127.0.0.1:0")
			tt.mutate(cfg.Security.Credentials)
			src, err := NewSource("searchads-test", cfg)
			require.NoError(t, err)

			err = src.Initialize(testutil.TestContext(t), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestSource_Registered(t *testing.T) {
	assert.True(t, registry.GetRegistry().HasSource(ConnectorName))
}
