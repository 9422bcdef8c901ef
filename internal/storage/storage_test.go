package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBucketResult = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>reports</Name>
  <Prefix>downloads/</Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>downloads/a.csv</Key>
    <LastModified>2026-01-02T03:04:05.000Z</LastModified>
    <ETag>"9b2cf535f27731c974343645a3985328"</ETag>
    <Size>12</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
</ListBucketResult>`

type fakeObjectStore struct {
	mu   sync.Mutex
	puts map[string]int64
	fail bool
}

func newFakeObjectStore(t *testing.T) (*fakeObjectStore, *httptest.Server) {
	t.Helper()
	store := &fakeObjectStore{puts: map[string]int64{}}
	srv := httptest.NewServer(http.HandlerFunc(store.serve))
	t.Cleanup(srv.Close)
	return store, srv
}

func (f *fakeObjectStore) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		n, _ := io.Copy(io.Discard, r.Body)
		f.mu.Lock()
		fail := f.fail
		if !fail {
			f.puts[r.URL.Path] = n
		}
		f.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"9b2cf535f27731c974343645a3985328"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if r.URL.Query().Has("location") {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, listBucketResult)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeObjectStore) received() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.puts))
	for k, v := range f.puts {
		out[k] = v
	}
	return out
}

func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
}

func writeCSV(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("id,value\n1,2\n"), 0o644))
	return path
}

func backends(t *testing.T, endpoint string) map[string]Service {
	t.Helper()
	isolateAWSEnv(t)
	ctx := context.Background()

	s3svc, err := New(ctx, Options{
		Driver:    DriverS3,
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	miniosvc, err := New(ctx, Options{
		Driver:    DriverMinio,
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	return map[string]Service{DriverS3: s3svc, DriverMinio: miniosvc}
}

func TestPutFileWritesBucketAndKey(t *testing.T) {
	for _, name := range []string{DriverS3, DriverMinio} {
		t.Run(name, func(t *testing.T) {
			store, srv := newFakeObjectStore(t)
			svc := backends(t, srv.URL)[name]
			path := writeCSV(t, "a.csv")

			location, err := svc.PutFile(context.Background(), "reports", "downloads/a.csv", path)
			require.NoError(t, err)
			assert.Equal(t, "s3://reports/downloads/a.csv", location)
			assert.Contains(t, store.received(), "/reports/downloads/a.csv")
		})
	}
}

func TestPutFileSurfacesRemoteFailure(t *testing.T) {
	for _, name := range []string{DriverS3, DriverMinio} {
		t.Run(name, func(t *testing.T) {
			store, srv := newFakeObjectStore(t)
			store.fail = true
			svc := backends(t, srv.URL)[name]
			path := writeCSV(t, "a.csv")

			_, err := svc.PutFile(context.Background(), "reports", "downloads/a.csv", path)
			require.Error(t, err)
			assert.False(t, strings.HasPrefix(err.Error(), "upload "), "callers add the file context: %v", err)
			assert.NotContains(t, err.Error(), path)
		})
	}
}

func TestPutFileValidation(t *testing.T) {
	for name, svc := range backends(t, "http://127.0.0.1:1") {
		t.Run(name, func(t *testing.T) {
			_, err := svc.PutFile(context.Background(), "", "downloads/a.csv", "a.csv")
			assert.ErrorIs(t, err, ErrBucketRequired)

			_, err = svc.PutFile(context.Background(), "reports", "", "a.csv")
			assert.Error(t, err)

			_, err = svc.PutFile(context.Background(), "reports", "downloads/missing.csv", filepath.Join(t.TempDir(), "missing.csv"))
			assert.Error(t, err)
		})
	}
}

func TestListObjects(t *testing.T) {
	for _, name := range []string{DriverS3, DriverMinio} {
		t.Run(name, func(t *testing.T) {
			_, srv := newFakeObjectStore(t)
			svc := backends(t, srv.URL)[name]

			objects, err := svc.ListObjects(context.Background(), "reports", "downloads/")
			require.NoError(t, err)
			require.Len(t, objects, 1)
			assert.Equal(t, "downloads/a.csv", objects[0].Key)
			assert.Equal(t, int64(12), objects[0].Size)
			require.NotNil(t, objects[0].LastModified)
			assert.Equal(t, 2026, objects[0].LastModified.Year())
		})
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "ftp"})
	assert.Error(t, err)
}

func TestNewRequiresCompleteKeyPair(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: DriverS3, Region: "us-east-1", AccessKey: "AKIDEXAMPLE"})
	assert.Error(t, err)
}

func TestMinioRequiresEndpoint(t *testing.T) {
	_, err := NewMinioService(MinioConfig{AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)
}
