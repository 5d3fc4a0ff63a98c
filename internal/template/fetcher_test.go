package template

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_DiskCacheHit(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher(dir, "http://unused.invalid", nil, nil)
	require.NoError(t, f.writeDiskCache("erc20", "contract template body"))

	content, err := f.Get(context.Background(), "erc20")
	require.NoError(t, err)
	assert.Equal(t, "contract template body", content)
}

func TestFetcher_RemoteFallbackPopulatesDiskCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote template body"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, srv.URL, nil, nil)

	content, err := f.Get(context.Background(), "audit-prompt")
	require.NoError(t, err)
	assert.Equal(t, "remote template body", content)

	cached, ok := f.readDiskCache("audit-prompt")
	require.True(t, ok)
	assert.Equal(t, "remote template body", cached)
}

func TestFetcher_UnavailableTemplateFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, srv.URL, nil, nil)

	_, err := f.Get(context.Background(), "missing")
	require.Error(t, err)
}
