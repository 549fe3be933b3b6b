// Package directory provides the client for the remote directory service
// that stores contacts, devices and public certificates.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/stacklok/nearby-sync/internal/otel"
	"github.com/stacklok/nearby-sync/pkg/versions"
)

// UserAgent is sent with every directory request
var UserAgent = versions.UserAgent("nearby-syncd")

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	tracerName = "github.com/stacklok/nearby-sync/internal/directory"
)

// Client is the RPC surface of the directory service
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/nearby-sync/internal/directory Client
type Client interface {
	// CheckContactsChanged reports whether the device's contacts changed since its last upload
	CheckContactsChanged(ctx context.Context, deviceID string) (bool, error)
	// ListContactPeople returns one page of the user's contact records
	ListContactPeople(ctx context.Context, req ListContactPeopleRequest) (*ListContactPeopleResponse, error)
	// UpdateDevice uploads the device name and contact list
	UpdateDevice(ctx context.Context, req UpdateDeviceRequest) (*UpdateDeviceResponse, error)
	// ListPublicCertificates returns one page of public certificates visible to the device
	ListPublicCertificates(ctx context.Context, req ListPublicCertificatesRequest) (*ListPublicCertificatesResponse, error)
}

// Option configures the HTTP client
type Option func(*HTTPClient)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithTracerProvider enables tracing spans around each RPC
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *HTTPClient) {
		c.tracerProvider = tp
	}
}

// WithTokenSource authorizes every request with a bearer token from ts
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *HTTPClient) {
		c.tokenSource = ts
	}
}

// HTTPClient is the JSON-over-HTTP implementation of Client
type HTTPClient struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer

	tracerProvider trace.TracerProvider
	tokenSource    oauth2.TokenSource
}

// NewHTTPClient creates a directory client for the service at baseURL
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := http.DefaultTransport
	if c.tokenSource != nil {
		transport = &oauth2.Transport{Source: c.tokenSource, Base: transport}
	}
	if c.tracerProvider != nil {
		c.tracer = c.tracerProvider.Tracer(tracerName)
		transport = otelhttp.NewTransport(transport, otelhttp.WithTracerProvider(c.tracerProvider))
	}
	c.client.Transport = transport
	return c
}

// CheckContactsChanged implements Client
func (c *HTTPClient) CheckContactsChanged(ctx context.Context, deviceID string) (_ bool, err error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "directory.CheckContactsChanged",
		trace.WithAttributes(otel.AttrDeviceID.String(deviceID)))
	defer otel.EndSpan(span, &err)

	var resp CheckContactsChangedResponse
	endpoint := c.baseURL + "/v1/" + DeviceParent(deviceID) + "/contactsChanged"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return false, err
	}
	return resp.Changed, nil
}

// ListContactPeople implements Client
func (c *HTTPClient) ListContactPeople(
	ctx context.Context, req ListContactPeopleRequest,
) (_ *ListContactPeopleResponse, err error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "directory.ListContactPeople",
		trace.WithAttributes(
			otel.AttrPageSize.Int(req.PageSize),
			otel.AttrHasCursor.Bool(req.PageToken != ""),
		))
	defer otel.EndSpan(span, &err)

	endpoint := c.baseURL + "/v1/" + req.Parent + "/contactRecords" + pageQuery(req.PageSize, req.PageToken)
	var resp ListContactPeopleResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(resp.ContactRecords)))
	return &resp, nil
}

// UpdateDevice implements Client
func (c *HTTPClient) UpdateDevice(ctx context.Context, req UpdateDeviceRequest) (_ *UpdateDeviceResponse, err error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "directory.UpdateDevice",
		trace.WithAttributes(
			otel.AttrDeviceID.String(req.DeviceID),
			otel.AttrContactCount.Int(len(req.Contacts)),
		))
	defer otel.EndSpan(span, &err)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp UpdateDeviceResponse
	endpoint := c.baseURL + "/v1/" + DeviceParent(req.DeviceID)
	if err := c.do(ctx, http.MethodPatch, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPublicCertificates implements Client
func (c *HTTPClient) ListPublicCertificates(
	ctx context.Context, req ListPublicCertificatesRequest,
) (_ *ListPublicCertificatesResponse, err error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "directory.ListPublicCertificates",
		trace.WithAttributes(otel.AttrHasCursor.Bool(req.PageToken != "")))
	defer otel.EndSpan(span, &err)

	endpoint := c.baseURL + "/v1/" + req.Parent + "/publicCertificates" + pageQuery(req.PageSize, req.PageToken)
	var resp ListPublicCertificatesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(resp.PublicCertificates)))
	return &resp, nil
}

func pageQuery(pageSize int, pageToken string) string {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, endpoint)
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return NewHTTPError(resp.StatusCode, endpoint, resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// +1 to detect if limit exceeded
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
