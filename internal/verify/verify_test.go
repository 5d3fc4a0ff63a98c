package verify

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

func TestVerify_VerifiedAfterPolling(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/verify/submit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guid":"abc123"}`))
	})
	mux.HandleFunc("/api/verify/status/abc123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		n := atomic.AddInt32(&polls, 1)
		if n < 2 {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"verified"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := NewVerifier(srv.URL, "", nil, 10*time.Second)
	result, err := v.Verify(context.Background(), Request{
		Address:         "0x0000000000000000000000000000000000000001",
		Source:          "contract C {}",
		CompilerVersion: "0.8.20",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Outcome)
	assert.Equal(t, "abc123", result.GUID)
}

func TestVerify_MismatchIsTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/verify/submit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guid":"xyz"}`))
	})
	mux.HandleFunc("/api/verify/status/xyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"mismatch","detail":"bytecode differs"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := NewVerifier(srv.URL, "", nil, 10*time.Second)
	result, err := v.Verify(context.Background(), Request{Address: "0x1", Source: "c"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, result.Outcome)
}

func TestVerify_TimesOutWhenAlwaysPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/verify/submit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guid":"pending-forever"}`))
	})
	mux.HandleFunc("/api/verify/status/pending-forever", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := NewVerifier(srv.URL, "", nil, 1500*time.Millisecond)
	result, err := v.Verify(context.Background(), Request{Address: "0x1", Source: "c"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, result.Outcome)
}
