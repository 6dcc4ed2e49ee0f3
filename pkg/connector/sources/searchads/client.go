package searchads

import (
	"bytes"
	"context"
	"fmt"
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

// DefaultBaseURL is the versioned REST root of the search ads API.
const DefaultBaseURL = "https://googleads.googleapis.com/v21"

const maxErrorBody = 64 * 1024

// SearchPage is one page of a search response.
type SearchPage struct {
	Results       []map[string]interface{} `json:"results"`
	NextPageToken string                   `json:"nextPageToken"`
}

// Searcher runs a query for one customer, page by page.
type Searcher interface {
	Search(ctx context.Context, customerID, query, pageToken string) (*SearchPage, error)
}

// APIError is a non-2xx response from the search endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	CustomerID string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("search for customer %s returned %d %s: %s", e.CustomerID, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("search for customer %s returned %d: %s", e.CustomerID, e.StatusCode, e.Message)
}

// Type maps the HTTP status onto the framework error categories.
func (e *APIError) Type() errors.ErrorType {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.ErrorTypeAuthentication
	case http.StatusNotFound:
		return errors.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return errors.ErrorTypeRateLimit
	case http.StatusBadRequest:
		return errors.ErrorTypeValidation
	default:
		return errors.ErrorTypeRemote
	}
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the googleAds:search endpoint.
type Client struct {
	baseURL         string
	developerToken  string
	loginCustomerID string
	doer            clients.HTTPDoer
	tokens          auth.TokenSource
	logger          *zap.Logger
}

// NewClient creates a search client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, developerToken, loginCustomerID string, doer clients.HTTPDoer, tokens auth.TokenSource, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		developerToken:  developerToken,
		loginCustomerID: NormalizeCustomerID(loginCustomerID),
		doer:            doer,
		tokens:          tokens,
		logger:          logger.With(zap.String("component", "searchads_client")),
	}
}

// NormalizeCustomerID strips the dashes of the 123-456-7890 display form.
func NormalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// Search fetches one page of results.
func (c *Client) Search(ctx context.Context, customerID, query, pageToken string) (*SearchPage, error) {
	customerID = NormalizeCustomerID(customerID)
	body := map[string]string{"query": query}
	if pageToken != "" {
		body["pageToken"] = pageToken
	}
	payload, err := jsonpool.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode search request")
	}

	target := c.baseURL + "/customers/" + url.PathEscape(customerID) + "/googleAds:search"
	req, err := http.NewRequestWithContext(clients.WithEndpoint(ctx, "googleads_search"), http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.developerToken)
	if c.loginCustomerID != "" {
		req.Header.Set("login-customer-id", c.loginCustomerID)
	}
	if err := auth.Authorize(req, c.tokens); err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp, customerID)
	}

	var page SearchPage
	if err := jsonpool.Decode(resp.Body, &page); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode search response")
	}
	c.logger.Debug("search page",
		zap.String("customer_id", customerID),
		zap.Int("results", len(page.Results)),
		zap.Bool("more", page.NextPageToken != ""))
	return &page, nil
}

func apiError(resp *http.Response, customerID string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	out := &APIError{StatusCode: resp.StatusCode, CustomerID: customerID, Message: http.StatusText(resp.StatusCode)}

	var env errorEnvelope
	if jsonpool.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		out.Message = env.Error.Message
		out.Status = env.Error.Status
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		out.Message = trimmed
	}
	return out
}
