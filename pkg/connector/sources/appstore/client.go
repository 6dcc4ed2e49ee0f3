package appstore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/auth"
	"github.com/ajitpratap0/storepulse/pkg/clients"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	jsonpool "github.com/ajitpratap0/storepulse/pkg/json"
)

// DefaultBaseURL is the App Store Connect API root.
const DefaultBaseURL = "https://api.appstoreconnect.apple.com/v1"

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 * 1024

// Catalog is the read surface of the reporting API used by the orchestrator.
type Catalog interface {
	ListReportRequests(ctx context.Context, appID string) ([]ReportRequest, error)
	ListReports(ctx context.Context, requestID, name string) ([]ReportDescriptor, error)
	ListReportInstances(ctx context.Context, reportID string) ([]ReportInstance, error)
	ListReportSegments(ctx context.Context, instanceID string) ([]ReportSegment, error)
	SegmentFetcher
}

// SegmentFetcher opens the payload of one segment.
type SegmentFetcher interface {
	FetchSegment(ctx context.Context, url string) (io.ReadCloser, error)
}

// Client maps catalog operations onto App Store Connect JSON:API endpoints.
// It follows pagination links so every list is complete, and never retries;
// retries belong to the HTTPDoer.
type Client struct {
	baseURL string
	doer    clients.HTTPDoer
	tokens  auth.TokenSource
	logger  *zap.Logger
}

// NewClient creates a catalog client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, doer clients.HTTPDoer, tokens auth.TokenSource, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		tokens:  tokens,
		logger:  logger.With(zap.String("component", "appstore_client")),
	}
}

// ListReportRequests lists the analytics report requests of an app.
func (c *Client) ListReportRequests(ctx context.Context, appID string) ([]ReportRequest, error) {
	docs, err := listAll[reportRequestAttributes](ctx, c, "report_requests",
		c.baseURL+"/apps/"+url.PathEscape(appID)+"/analyticsReportRequests")
	if err != nil {
		return nil, err
	}
	out := make([]ReportRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, ReportRequest{
			ID:                     d.ID,
			AccessType:             d.Attributes.AccessType,
			StoppedDueToInactivity: d.Attributes.StoppedDueToInactivity,
		})
	}
	return out, nil
}

// ListReports lists the reports of a request whose name equals name exactly.
// The name filter is sent to the server and re-applied locally.
func (c *Client) ListReports(ctx context.Context, requestID, name string) ([]ReportDescriptor, error) {
	endpoint := c.baseURL + "/analyticsReportRequests/" + url.PathEscape(requestID) + "/reports"
	if name != "" {
		endpoint += "?" + url.Values{"filter[name]": {name}}.Encode()
	}
	docs, err := listAll[reportAttributes](ctx, c, "reports", endpoint)
	if err != nil {
		return nil, err
	}
	out := make([]ReportDescriptor, 0, len(docs))
	for _, d := range docs {
		if name != "" && d.Attributes.Name != name {
			continue
		}
		out = append(out, ReportDescriptor{ID: d.ID, Name: d.Attributes.Name, Category: d.Attributes.Category})
	}
	return out, nil
}

// ListReportInstances lists every generated instance of a report.
func (c *Client) ListReportInstances(ctx context.Context, reportID string) ([]ReportInstance, error) {
	docs, err := listAll[instanceAttributes](ctx, c, "instances",
		c.baseURL+"/analyticsReports/"+url.PathEscape(reportID)+"/instances")
	if err != nil {
		return nil, err
	}
	out := make([]ReportInstance, 0, len(docs))
	for _, d := range docs {
		out = append(out, ReportInstance{
			ID:             d.ID,
			Granularity:    d.Attributes.Granularity,
			ProcessingDate: d.Attributes.ProcessingDate,
		})
	}
	return out, nil
}

// ListReportSegments lists the downloadable segments of an instance.
func (c *Client) ListReportSegments(ctx context.Context, instanceID string) ([]ReportSegment, error) {
	docs, err := listAll[segmentAttributes](ctx, c, "segments",
		c.baseURL+"/analyticsReportInstances/"+url.PathEscape(instanceID)+"/segments")
	if err != nil {
		return nil, err
	}
	out := make([]ReportSegment, 0, len(docs))
	for _, d := range docs {
		out = append(out, ReportSegment{
			ID:          d.ID,
			URL:         d.Attributes.URL,
			Checksum:    d.Attributes.Checksum,
			SizeInBytes: d.Attributes.SizeInBytes,
		})
	}
	return out, nil
}

// FetchSegment opens a segment download. Segment URLs are pre-signed, so no
// bearer token is attached. The caller closes the returned body.
func (c *Client) FetchSegment(ctx context.Context, segmentURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(clients.WithEndpoint(ctx, "segment_download"), http.MethodGet, segmentURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid segment url")
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp, segmentURL)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, endpoint, target string, v interface{}) error {
	req, err := http.NewRequestWithContext(clients.WithEndpoint(ctx, endpoint), http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.Authorize(req, c.tokens); err != nil {
		return err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(resp, target)
	}
	if err := jsonpool.Decode(resp.Body, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode "+endpoint+" response")
	}
	return nil
}

// listAll fetches a collection and every page linked from it.
func listAll[A any](ctx context.Context, c *Client, endpoint, first string) ([]resource[A], error) {
	var out []resource[A]
	seen := make(map[string]struct{})
	for next := first; next != ""; {
		if _, dup := seen[next]; dup {
			c.logger.Warn("pagination cycle detected", zap.String("endpoint", endpoint), zap.String("url", next))
			break
		}
		seen[next] = struct{}{}

		var doc document[A]
		if err := c.get(ctx, endpoint, next, &doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Data...)
		next = doc.Links.Next
	}
	c.logger.Debug("listed collection", zap.String("endpoint", endpoint), zap.Int("count", len(out)))
	return out, nil
}

// remoteError drains and closes resp, extracting the JSON:API error detail
// when present.
func remoteError(resp *http.Response, target string) *RemoteRequestError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := http.StatusText(resp.StatusCode)
	var doc errorDocument
	if jsonpool.Unmarshal(body, &doc) == nil && len(doc.Errors) > 0 {
		first := doc.Errors[0]
		switch {
		case first.Detail != "":
			message = first.Detail
		case first.Title != "":
			message = first.Title
		}
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		message = trimmed
	}

	return &RemoteRequestError{StatusCode: resp.StatusCode, Message: message, URL: target}
}
