package directory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stacklok/nearby-sync/internal/directory"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestCheckContactsChanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		expected bool
	}{
		{name: "changed", body: `{"changed": true}`, expected: true},
		{name: "unchanged", body: `{"changed": false}`, expected: false},
		{name: "missing field defaults to unchanged", body: `{}`, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var receivedPath, receivedUserAgent string
			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedPath = r.URL.Path
				receivedUserAgent = r.Header.Get("User-Agent")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := directory.NewHTTPClient(server.URL)
			changed, err := client.CheckContactsChanged(context.Background(), "dev-1")

			require.NoError(t, err)
			assert.Equal(t, tt.expected, changed)
			assert.Equal(t, "/v1/users/me/devices/dev-1/contactsChanged", receivedPath)
			assert.Equal(t, directory.UserAgent, receivedUserAgent)
		})
	}
}

func TestListContactPeople(t *testing.T) {
	t.Parallel()

	var receivedQuery map[string]string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/me/devices/dev-1/contactRecords", r.URL.Path)
		receivedQuery = map[string]string{
			"pageSize":  r.URL.Query().Get("pageSize"),
			"pageToken": r.URL.Query().Get("pageToken"),
		}
		_ = json.NewEncoder(w).Encode(directory.ListContactPeopleResponse{
			ContactRecords: []directory.ContactRecord{{
				ID: "a",
				Identifiers: []directory.Identifier{
					{Type: directory.IdentifierTypeEmail, Value: "a@example.com"},
				},
			}},
			NextPageToken: "next",
		})
	}))
	defer server.Close()

	client := directory.NewHTTPClient(server.URL + "/")
	resp, err := client.ListContactPeople(context.Background(), directory.ListContactPeopleRequest{
		Parent:    directory.DeviceParent("dev-1"),
		PageSize:  50,
		PageToken: "tok",
	})

	require.NoError(t, err)
	require.Len(t, resp.ContactRecords, 1)
	assert.Equal(t, "a", resp.ContactRecords[0].ID)
	assert.Equal(t, "next", resp.NextPageToken)
	assert.Equal(t, map[string]string{"pageSize": "50", "pageToken": "tok"}, receivedQuery)
}

func TestUpdateDevice(t *testing.T) {
	t.Parallel()

	var received directory.UpdateDeviceRequest
	var method, contentType string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		assert.Equal(t, "/v1/users/me/devices/dev-1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		_, _ = w.Write([]byte(`{"name": "users/me/devices/dev-1", "displayName": "laptop"}`))
	}))
	defer server.Close()

	client := directory.NewHTTPClient(server.URL)
	resp, err := client.UpdateDevice(context.Background(), directory.UpdateDeviceRequest{
		DeviceID:   "dev-1",
		DeviceName: "laptop",
		Contacts: []directory.Contact{{
			Identifier: directory.Identifier{Type: directory.IdentifierTypePhone, Value: "555"},
			IsSelected: true,
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "laptop", received.DeviceName)
	require.Len(t, received.Contacts, 1)
	assert.True(t, received.Contacts[0].IsSelected)
	assert.Equal(t, "users/me/devices/dev-1", resp.Name)
}

func TestListPublicCertificates(t *testing.T) {
	t.Parallel()

	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/me/devices/dev-1/publicCertificates", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(directory.ListPublicCertificatesResponse{
			PublicCertificates: []directory.PublicCertificate{{SecretID: []byte{1, 2}, EndTime: end}},
		})
	}))
	defer server.Close()

	client := directory.NewHTTPClient(server.URL)
	resp, err := client.ListPublicCertificates(context.Background(), directory.ListPublicCertificatesRequest{
		Parent: directory.DeviceParent("dev-1"),
	})

	require.NoError(t, err)
	require.Len(t, resp.PublicCertificates, 1)
	assert.Equal(t, []byte{1, 2}, resp.PublicCertificates[0].SecretID)
	assert.True(t, resp.PublicCertificates[0].EndTime.Equal(end))
	assert.Empty(t, resp.NextPageToken)
}

func TestHTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		errorContains string
	}{
		{name: "404 Not Found", statusCode: http.StatusNotFound, errorContains: "HTTP 404"},
		{name: "500 Internal Server Error", statusCode: http.StatusInternalServerError, errorContains: "HTTP 500"},
		{name: "401 Unauthorized", statusCode: http.StatusUnauthorized, errorContains: "HTTP 401"},
		{name: "503 Service Unavailable", statusCode: http.StatusServiceUnavailable, errorContains: "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := directory.NewHTTPClient(server.URL)
			_, err := client.CheckContactsChanged(context.Background(), "dev-1")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)

			var httpErr *directory.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
		})
	}
}

func TestMalformedResponse(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := directory.NewHTTPClient(server.URL)
	_, err := client.ListContactPeople(context.Background(), directory.ListContactPeopleRequest{Parent: "p"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	defer close(release)

	client := directory.NewHTTPClient(server.URL, directory.WithTimeout(20*time.Millisecond))
	_, err := client.CheckContactsChanged(context.Background(), "dev-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrTimeout)
}

func TestContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := directory.NewHTTPClient(server.URL)
	_, err := client.UpdateDevice(ctx, directory.UpdateDeviceRequest{DeviceID: "dev-1"})

	assert.ErrorIs(t, err, directory.ErrTimeout)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"changed": true}`))
	}))
	defer server.Close()

	client := directory.NewHTTPClient(server.URL, directory.WithTracerProvider(tp))
	_, err := client.CheckContactsChanged(context.Background(), "dev-1")
	require.NoError(t, err)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Contains(t, names, "directory.CheckContactsChanged")
}
