package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"amocrm-relay/internal/common/errors"
	commonhttp "amocrm-relay/internal/common/http"
	"amocrm-relay/internal/common/metrics"
)

const (
	serviceName  = "amocrm"
	maxErrorBody = 200
)

// CRMClient talks to the amoCRM REST API v4 with a long-lived bearer token.
type CRMClient struct {
	baseURL     string
	accessToken string
	httpClient  *commonhttp.Client
}

func NewCRMClient(baseURL, accessToken string, timeout time.Duration) *CRMClient {
	return &CRMClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  commonhttp.NewClient(timeout),
	}
}

// WithHTTPClient replaces the transport client.
func (c *CRMClient) WithHTTPClient(client *commonhttp.Client) *CRMClient {
	c.httpClient = client
	return c
}

// Configured reports whether both the account URL and token are set.
func (c *CRMClient) Configured() bool {
	return c != nil && c.baseURL != "" && c.accessToken != ""
}

func (c *CRMClient) BaseURL() string {
	return c.baseURL
}

// GetLead fetches one lead with its embedded contacts and companies.
// An empty object or a 204/404 answer is reported as RESOURCE_NOT_FOUND.
func (c *CRMClient) GetLead(ctx context.Context, leadID string) (*Lead, error) {
	path := fmt.Sprintf("/api/v4/leads/%s", url.PathEscape(leadID))
	query := url.Values{"with": {"contacts,companies"}}

	body, status, err := c.get(ctx, "get_lead", path, query)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || isEmptyObject(body) {
		return nil, errors.NewResourceNotFoundError(serviceName, fmt.Sprintf("lead %s", leadID))
	}

	var lead Lead
	if err := decode(body, &lead); err != nil {
		return nil, errors.NewUpstreamError(serviceName, fmt.Errorf("failed to decode lead %s: %w", leadID, err))
	}
	return &lead, nil
}

// ListContacts fetches contacts by id in one call using filter[id].
func (c *CRMClient) ListContacts(ctx context.Context, ids []int64) ([]Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	query := url.Values{"filter[id]": {strings.Join(parts, ",")}}

	body, status, err := c.get(ctx, "list_contacts", "/api/v4/contacts", query)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var result contactList
	if err := decode(body, &result); err != nil {
		return nil, errors.NewUpstreamError(serviceName, fmt.Errorf("failed to decode contacts: %w", err))
	}
	return result.Embedded.Contacts, nil
}

// get performs an authorized GET. It returns the body for 200, 204 and 404;
// every other status is an UPSTREAM_UNAVAILABLE error.
func (c *CRMClient) get(ctx context.Context, operation, path string, query url.Values) ([]byte, int, error) {
	if !c.Configured() {
		return nil, 0, errors.NewConfigurationMissingError(serviceName, "base URL or access token is empty")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, errors.NewUpstreamError(serviceName, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDuration.WithLabelValues(serviceName, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, operation, "transport_error").Inc()
		return nil, 0, errors.NewUpstreamError(serviceName, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, operation, "transport_error").Inc()
		return nil, resp.StatusCode, errors.NewUpstreamError(serviceName, fmt.Errorf("failed to read response body: %w", err))
	}

	metrics.UpstreamRequests.WithLabelValues(serviceName, operation, strconv.Itoa(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return body, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, errors.NewUpstreamError(serviceName,
			fmt.Errorf("GET %s (status %d): %s", path, resp.StatusCode, truncate(body, maxErrorBody))).
			WithMetadata("status", resp.StatusCode)
	}
}

func decode(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func isEmptyObject(body []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return len(bytes.TrimSpace(body)) == 0
	}
	return len(fields) == 0
}

func truncate(body []byte, n int) string {
	s := string(body)
	if len(s) > n {
		return s[:n]
	}
	return s
}
