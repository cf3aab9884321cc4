package pageconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loaderDocument = `
metadata:
  configVersion: "1.0.0"
pageBuilder:
  - _key: card
    _type: infoCard
    title: Stamdata
    dataSource:
      source: companies
      params:
        columns:
          - column: name
            label: Navn
`

func TestLoaderCachesWithinTTL(t *testing.T) {
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(loaderDocument))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{
		URL:          server.URL,
		CacheTTL:     time.Hour,
		FetchTimeout: 5 * time.Second,
	}, nil)

	ctx := context.Background()
	doc1, err := loader.Load(ctx)
	require.NoError(t, err)
	doc2, err := loader.Load(ctx)
	require.NoError(t, err)

	assert.Same(t, doc1, doc2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	assert.Equal(t, "1.0.0", doc1.Metadata.ConfigVersion)
	assert.Len(t, doc1.PageBuilder, 1)
}

func TestLoaderServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(loaderDocument))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{
		URL:          server.URL,
		CacheTTL:     time.Nanosecond, // every Load attempts a refresh
		FetchTimeout: 5 * time.Second,
	}, nil)

	ctx := context.Background()
	doc1, err := loader.Load(ctx)
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(time.Millisecond)

	doc2, err := loader.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, doc1, doc2, "stale document should be served when the refresh fails")
}

func TestLoaderErrorsWithoutStaleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{
		URL:          server.URL,
		CacheTTL:     time.Hour,
		FetchTimeout: 5 * time.Second,
	}, nil)

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestLoaderInvalidateForcesRefetch(t *testing.T) {
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(loaderDocument))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{
		URL:          server.URL,
		CacheTTL:     time.Hour,
		FetchTimeout: 5 * time.Second,
	}, nil)

	ctx := context.Background()
	_, err := loader.Load(ctx)
	require.NoError(t, err)

	loader.Invalidate()

	_, err = loader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pageBuilder: [broken"))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{
		URL:          server.URL,
		CacheTTL:     time.Hour,
		FetchTimeout: 5 * time.Second,
	}, nil)

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse page configuration")
}
