package symbolic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
)

func TestRunner_ParsesJSONFindings(t *testing.T) {
	r := NewRunner("/bin/sh", []string{"-c",
		`echo '{"findings":[{"kind":"reentrancy","severity":"High","confidence":"High","file":"source.sol","line":4,"column":1,"evidence":"call.value"}]}'`,
	}, 5*time.Second, nil)

	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)
	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, model.VulnReentrancy, findings[0].Kind)
	assert.Equal(t, "symbolic", findings[0].Detector)
}

func TestRunner_NonJSONOutputYieldsNoFindings(t *testing.T) {
	r := NewRunner("/bin/sh", []string{"-c", `echo 'not json'`}, 5*time.Second, nil)

	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)
	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRunner_NonZeroExitWithValidJSONIsNotAnError(t *testing.T) {
	r := NewRunner("/bin/sh", []string{"-c",
		`echo '{"findings":[]}'; exit 1`,
	}, 5*time.Second, nil)

	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)
	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRunner_UnknownKindIsDropped(t *testing.T) {
	r := NewRunner("/bin/sh", []string{"-c",
		`echo '{"findings":[{"kind":"not_a_real_kind","severity":"Low","confidence":"Low"}]}'`,
	}, 5*time.Second, nil)

	src := model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)
	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
