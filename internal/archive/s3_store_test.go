package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the path-style subset of the S3 API the store uses.
type fakeS3 struct {
	*httptest.Server

	mu           sync.Mutex
	buckets      map[string]bool
	objects      map[string][]byte
	headFailures int
	heads        int
	makes        int
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeS3) store(t *testing.T, bucket string) *S3Store {
	t.Helper()
	s, err := NewS3Store(S3Config{
		Endpoint:  f.Listener.Addr().String(),
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    bucket,
	})
	require.NoError(t, err)
	return s
}

func (f *fakeS3) failHeads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headFailures = n
}

func (f *fakeS3) counts() (heads, makes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads, f.makes
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && key == "":
		f.heads++
		if f.headFailures > 0 {
			f.headFailures--
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.makes++
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err == nil && strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			body, err = decodeAWSChunked(body)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[bucket+"/"+key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && key == "":
		f.list(w, bucket, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodGet:
		data, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("ETag", `"etag"`)
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, bucket, prefix string) {
	type content struct {
		Key          string
		LastModified string
		ETag         string
		Size         int
	}
	result := struct {
		XMLName     xml.Name `xml:"ListBucketResult"`
		Name        string
		Prefix      string
		KeyCount    int
		MaxKeys     int
		IsTruncated bool
		Contents    []content
	}{Name: bucket, Prefix: prefix, MaxKeys: 1000}

	var keys []string
	for k := range f.objects {
		if name, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Contents = append(result.Contents, content{
			Key:          k,
			LastModified: "2024-05-01T12:30:00.000Z",
			ETag:         `"etag"`,
			Size:         len(f.objects[bucket+"/"+k]),
		})
	}
	result.KeyCount = len(keys)

	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(result)
}

// decodeAWSChunked strips the chunk framing of a streaming-signed upload.
func decodeAWSChunked(body []byte) ([]byte, error) {
	var out []byte
	r := bufio.NewReader(bytes.NewReader(body))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out, nil
		}
		chunk := make([]byte, size+2)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk[:size]...)
	}
}

func TestNewS3Store(t *testing.T) {
	testCases := []struct {
		name string
		cfg  S3Config
		err  string
	}{
		{name: "no endpoint", cfg: S3Config{Bucket: "twins"}, err: "s3 endpoint is required"},
		{name: "blank bucket", cfg: S3Config{Endpoint: "localhost:9000", Bucket: "  "}, err: "s3 bucket is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewS3Store(tc.cfg)
			assert.ErrorContains(t, err, tc.err)
		})
	}

	s, err := NewS3Store(S3Config{Endpoint: " localhost:9000 ", Bucket: " twins "})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
	assert.Equal(t, "s3://twins/models/a.json", s.Location("models/a.json"))
}

func TestS3Store_PutGetList(t *testing.T) {
	// --- Arrange ---
	fake := newFakeS3(t)
	store := fake.store(t, "twins")
	ctx := context.Background()

	// --- Act ---
	require.NoError(t, store.Put(ctx, "/models/snap/b.json", []byte(`{"b":2}`)))
	require.NoError(t, store.Put(ctx, "models/snap/a.json", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "other/c.json", []byte(`{}`)))
	data, getErr := store.Get(ctx, "models/snap/a.json")
	keys, listErr := store.List(ctx, "models/snap")
	_, missingErr := store.Get(ctx, "models/snap/zzz.json")

	// --- Assert ---
	require.NoError(t, getErr)
	assert.JSONEq(t, `{"a":1}`, string(data))
	require.NoError(t, listErr)
	assert.Equal(t, []string{"models/snap/a.json", "models/snap/b.json"}, keys)
	assert.ErrorIs(t, missingErr, ErrNotFound)
	heads, makes := fake.counts()
	assert.Equal(t, 1, makes, "bucket is created once")
	assert.Equal(t, 1, heads, "bucket is checked once")
	assert.ErrorContains(t, store.Put(ctx, "../escape", nil), "must not contain")
}

func TestS3Store_RetriesBucketCheckAfterFailure(t *testing.T) {
	// --- Arrange ---
	fake := newFakeS3(t)
	fake.failHeads(1)
	store := fake.store(t, "twins")
	ctx := context.Background()

	// --- Act ---
	firstErr := store.Put(ctx, "models/a.json", []byte(`{}`))
	secondErr := store.Put(ctx, "models/a.json", []byte(`{"a":1}`))
	thirdErr := store.Put(ctx, "models/b.json", []byte(`{"b":1}`))

	// --- Assert ---
	assert.ErrorContains(t, firstErr, "ensure bucket")
	require.NoError(t, secondErr, "a failed bucket check must not stick")
	require.NoError(t, thirdErr)
	heads, makes := fake.counts()
	assert.Equal(t, 2, heads)
	assert.Equal(t, 1, makes)
	data, err := store.Get(ctx, "models/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))
}
