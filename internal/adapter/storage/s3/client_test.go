package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintcal/mintcal/internal/domain"
)

// fakeS3 answers just enough of the S3 wire protocol for the client:
// bucket location lookups, HEAD existence probes and object PUTs.
func fakeS3(t *testing.T, objects map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("location") {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`))
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
		switch r.Method {
		case http.MethodHead:
			if _, ok := objects[key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", "3")
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	c, err := New(endpoint, "test-access", "test-secret", "test-bucket", false)
	require.NoError(t, err)
	return c
}

func TestClient_Exists(t *testing.T) {
	srv := fakeS3(t, map[string][]byte{"calendars/u1/c1/abc.pdf": []byte("pdf")})
	defer srv.Close()
	c := newTestClient(t, srv)

	ok, err := c.Exists(context.Background(), "calendars/u1/c1/abc.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), "calendars/u1/c1/missing.pdf")
	require.NoError(t, err, "missing object is not a transport error")
	assert.False(t, ok)
}

func TestClient_Put(t *testing.T) {
	srv := fakeS3(t, nil)
	defer srv.Close()
	c := newTestClient(t, srv)

	err := c.Put(context.Background(), "calendars/u1/c1/abc.pdf", []byte("%PDF-1.4 fake"), "application/pdf")
	require.NoError(t, err)

	// Empty content type is sniffed rather than sent blank.
	err = c.Put(context.Background(), "calendars/u1/c1/auto.pdf", []byte("%PDF-1.4 fake"), "")
	require.NoError(t, err)
}

func TestClient_SignedGet_IsLocalAndBounded(t *testing.T) {
	srv := fakeS3(t, nil)
	defer srv.Close()
	c := newTestClient(t, srv)

	u, err := c.SignedGet(context.Background(), "calendars/u1/c1/abc.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "calendars/u1/c1/abc.pdf")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=900")

	// Never embed credentials in the URL beyond the standard access key id.
	assert.NotContains(t, u, "test-secret")

	u, err = c.SignedGet(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Expires=3600", "zero ttl falls back to the default")
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "a", "b", "bucket", false)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = New("localhost:9000", "a", "b", "", false)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClassify(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Fatalf("nil error should stay nil, got %v", err)
	}

	srvErr := minio.ErrorResponse{Code: "InternalError", StatusCode: 503}
	if !errors.Is(classify(srvErr), domain.ErrTransient) {
		t.Fatal("5xx should classify as transient")
	}

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	if errors.Is(classify(denied), domain.ErrTransient) {
		t.Fatal("4xx must be permanent")
	}

	if !errors.Is(classify(errors.New("dial tcp: connection refused")), domain.ErrTransient) {
		t.Fatal("transport errors should classify as transient")
	}

	if errors.Is(classify(context.Canceled), domain.ErrTransient) {
		t.Fatal("cancellation is not retryable")
	}
}
