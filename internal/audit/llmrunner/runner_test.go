package llmrunner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
)

func TestRunner_ParsesFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"` +
			`\n\n```json\n` +
			`{\"findings\":[{\"kind\":\"txOrigin\",\"severity\":\"High\",\"confidence\":\"High\",\"line\":10,\"column\":2,\"file\":\"a.sol\",\"evidence\":\"tx.origin\"}]}` +
			`\n```"}`))
	}))
	defer srv.Close()

	r := NewRunner(srv.URL, "", "test-model", nil, nil)
	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)

	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, model.VulnTxOrigin, findings[0].Kind)
	assert.Equal(t, "llm", findings[0].Detector)
}

func TestRunner_MalformedResponseYieldsNoFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"not json at all"}`))
	}))
	defer srv.Close()

	r := NewRunner(srv.URL, "", "test-model", nil, nil)
	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)

	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRunner_EndpointErrorIsLLMUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRunner(srv.URL, "", "test-model", nil, nil)
	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)

	_, err := r.Run(context.Background(), src)
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindLLMUnavailable, perr.Kind)
}
