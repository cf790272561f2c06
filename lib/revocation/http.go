// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/custody/lib/netutil"
)

// ContentTypeCBOR is the media type of revoke invocation bodies.
const ContentTypeCBOR = "application/cbor"

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the authority's root, e.g. "https://up.example.net".
	BaseURL string

	// HTTPClient defaults to a client with no overall timeout; each
	// status check is bounded by the caller's context.
	HTTPClient *http.Client

	// RateLimit and Burst bound outbound requests. A zero RateLimit
	// disables limiting.
	RateLimit rate.Limit
	Burst     int
}

// HTTPClient is an Authority reached over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Authority = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(config HTTPClientConfig) (*HTTPClient, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("revocation: invalid authority URL %q", config.BaseURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := &HTTPClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: httpClient,
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(config.RateLimit, burst)
	}
	return client, nil
}

// Status asks GET /revocations/{id}: 200 means revoked, 404 means not
// revoked, anything else is an error.
func (client *HTTPClient) Status(ctx context.Context, delegationID string) (bool, error) {
	response, err := client.do(ctx, http.MethodGet, "/revocations/"+url.PathEscape(delegationID), nil)
	if err != nil {
		return false, fmt.Errorf("revocation status: %w", err)
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("revocation status: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
}

// Revoke posts the invocation to POST /revocations.
func (client *HTTPClient) Revoke(ctx context.Context, invocation []byte) (*Record, error) {
	response, err := client.do(ctx, http.MethodPost, "/revocations", invocation)
	if err != nil {
		return nil, fmt.Errorf("revoke: %w", err)
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusBadRequest, http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRejected, response.StatusCode, netutil.ErrorBody(response.Body))
	default:
		return nil, fmt.Errorf("revoke: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var record Record
	if err := netutil.DecodeResponse(response.Body, &record); err != nil {
		return nil, fmt.Errorf("revoke: %w", err)
	}
	return &record, nil
}

func (client *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if client.limiter != nil {
		if err := client.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		request.Header.Set("Content-Type", ContentTypeCBOR)
	}
	request.Header.Set("Accept", "application/json")
	return client.httpClient.Do(request)
}
