package appstore

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/v1", server.Client(), staticToken("tok"), testutil.TestLogger(t)), server
}

func TestClient_ListReportRequestsFollowsPages(t *testing.T) {
	var server *httptest.Server
	var paths []string
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		paths = append(paths, r.URL.RequestURI())
		switch r.URL.RequestURI() {
		case "/v1/apps/123/analyticsReportRequests":
			_, _ = io.WriteString(w, `{"data":[{"type":"analyticsReportRequests","id":"r1","attributes":{"accessType":"ONE_TIME_SNAPSHOT"}}],
				"links":{"next":"`+server.URL+`/v1/apps/123/analyticsReportRequests?cursor=2"}}`)
		case "/v1/apps/123/analyticsReportRequests?cursor=2":
			_, _ = io.WriteString(w, `{"data":[{"type":"analyticsReportRequests","id":"r2","attributes":{"accessType":"ONGOING","stoppedDueToInactivity":true}}],"links":{}}`)
		default:
			http.NotFound(w, r)
		}
	})

	requests, err := client.ListReportRequests(testutil.TestContext(t), "123")
	require.NoError(t, err)
	assert.Equal(t, []ReportRequest{
		{ID: "r1", AccessType: "ONE_TIME_SNAPSHOT"},
		{ID: "r2", AccessType: AccessTypeOngoing, StoppedDueToInactivity: true},
	}, requests)
	assert.Len(t, paths, 2)
}

func TestClient_ListReportsFiltersByExactName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyticsReportRequests/req-1/reports", r.URL.Path)
		assert.Equal(t, downloadsReport, r.URL.Query().Get("filter[name]"))
		_, _ = io.WriteString(w, `{"data":[
			{"type":"analyticsReports","id":"a","attributes":{"name":"App Downloads Detailed","category":"COMMERCE"}},
			{"type":"analyticsReports","id":"b","attributes":{"name":"App Downloads Standard","category":"COMMERCE"}}
		]}`)
	})

	reports, err := client.ListReports(testutil.TestContext(t), "req-1", downloadsReport)
	require.NoError(t, err)
	assert.Equal(t, []ReportDescriptor{{ID: "a", Name: downloadsReport, Category: "COMMERCE"}}, reports)
}

func TestClient_InstancesAndSegments(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/analyticsReports/rep-1/instances":
			_, _ = io.WriteString(w, `{"data":[{"type":"analyticsReportInstances","id":"i1","attributes":{"granularity":"DAILY","processingDate":"2024-01-05"}}]}`)
		case "/v1/analyticsReportInstances/i1/segments":
			_, _ = io.WriteString(w, `{"data":[{"type":"analyticsReportSegments","id":"s1","attributes":{"checksum":"abc","sizeInBytes":42,"url":"https://files/s1"}}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := testutil.TestContext(t)

	instances, err := client.ListReportInstances(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, []ReportInstance{{ID: "i1", Granularity: "DAILY", ProcessingDate: "2024-01-05"}}, instances)

	segments, err := client.ListReportSegments(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []ReportSegment{{ID: "s1", URL: "https://files/s1", Checksum: "abc", SizeInBytes: 42}}, segments)
}

func TestClient_RemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		errType errors.ErrorType
	}{
		{"json api detail", 403, `{"errors":[{"status":"403","code":"FORBIDDEN","title":"Forbidden","detail":"This request is forbidden."}]}`, "This request is forbidden.", errors.ErrorTypeAuthentication},
		{"plain body", 500, "boom", "boom", errors.ErrorTypeRemote},
		{"empty body", 404, "", "Not Found", errors.ErrorTypeNotFound},
		{"throttled", 429, "", "Too Many Requests", errors.ErrorTypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.ListReportRequests(testutil.TestContext(t), "123")
			require.Error(t, err)

			var remote *RemoteRequestError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, tt.message, remote.Message)
			assert.True(t, strings.HasSuffix(remote.URL, "/v1/apps/123/analyticsReportRequests"))
			assert.Equal(t, tt.errType, errors.TypeOf(err))
		})
	}
}

func TestClient_FetchSegment(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "segment urls are pre-signed")
		if r.URL.Path == "/files/missing" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = io.WriteString(w, "payload")
	})
	ctx := testutil.TestContext(t)

	body, err := client.FetchSegment(ctx, server.URL+"/files/s1")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "payload", string(data))

	_, err = client.FetchSegment(ctx, server.URL+"/files/missing")
	var remote *RemoteRequestError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusGone, remote.StatusCode)
}
