package rawdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func payload() Payload {
	return Payload{
		Type:      "spatialdata",
		Source:    "DigiWay",
		SourceURL: "https://geoservices.example/trails.geojson",
		Format:    "geojson",
		Body:      []byte(`{"type":"FeatureCollection","features":[]}`),
	}
}

func TestArchiver_Inline(t *testing.T) {
	st := newTestStore(t)
	a := NewArchiver(st, nil, testLogger())
	ctx := context.Background()

	id, err := a.Archive(ctx, payload())
	require.NoError(t, err)
	require.NotZero(t, id)

	rd, body, err := a.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "digiway", rd.DataSource)
	assert.Empty(t, rd.BlobKey)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(body))
}

// mockS3 is a path-style S3 endpoint keeping objects in memory
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		m.objects[key] = body
		m.types[key] = req.Header.Get("Content-Type")
		return respond(http.StatusOK, nil), nil
	case http.MethodGet:
		body, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil), nil
		}
		return respond(http.StatusOK, body), nil
	}
	return respond(http.StatusNotImplemented, nil), nil
}

func respond(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(body))},
			"ETag":           {"\"etag\""},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		},
		ContentLength: int64(len(body)),
	}
}

// decodeChunked decodes a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	var size int64
	if _, err := fmt.Sscanf(strings.SplitN(parts[0], ";", 2)[0], "%x", &size); err != nil {
		return nil, false
	}
	if int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockBlobs(t *testing.T) (*S3Blobs, *mockS3) {
	t.Helper()
	rt := &mockS3{objects: map[string][]byte{}, types: map[string]string{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return newS3WithClient(client, "raw", "imports"), rt
}

func TestArchiver_S3(t *testing.T) {
	st := newTestStore(t)
	blobs, rt := newMockBlobs(t)
	a := NewArchiver(st, blobs, testLogger())
	a.now = func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	id, err := a.Archive(ctx, payload())
	require.NoError(t, err)

	rd, body, err := a.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rd.Raw)
	assert.True(t, strings.HasPrefix(rd.BlobKey, "digiway/2024/06/03/"), rd.BlobKey)
	assert.True(t, strings.HasSuffix(rd.BlobKey, ".geojson"))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(body))

	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.Len(t, rt.objects, 1)
	for k, v := range rt.types {
		assert.Equal(t, "raw/imports/"+rd.BlobKey, k)
		assert.Equal(t, "application/geo+json", v)
	}
}

func TestArchiver_BlobWithoutStore(t *testing.T) {
	st := newTestStore(t)
	blobs, _ := newMockBlobs(t)
	ctx := context.Background()

	id, err := NewArchiver(st, blobs, testLogger()).Archive(ctx, payload())
	require.NoError(t, err)

	_, _, err = NewArchiver(st, nil, testLogger()).Load(ctx, id)
	assert.Error(t, err)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
