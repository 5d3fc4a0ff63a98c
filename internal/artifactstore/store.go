// Package artifactstore persists the per-run artifact layout of spec.md §6:
// source.sol, audit.json, deployment.json, verification.json, context.json
// under artifacts/workflows/<runId>/. Writes are write-only from the
// orchestrator's perspective and atomic (write-to-temp, rename-to-final),
// matching the template fetcher's cache-write discipline (spec.md §5).
package artifactstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Store writes workflow artifacts under Root/<runId>/.
type Store struct {
	Root string
}

// NewStore builds a Store rooted at root (spec.md §6: "artifacts/workflows").
func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) runDir(runID model.RunID) string {
	return filepath.Join(s.Root, string(runID))
}

// WriteSource persists the generated/fetched contract body as source.sol.
func (s *Store) WriteSource(runID model.RunID, body string) (string, error) {
	return s.writeFile(runID, "source.sol", []byte(body))
}

// WriteAudit persists the AuditVerdict as audit.json, plus a gzip-compressed
// duplicate for archival (DOMAIN STACK: klauspost/compress on large
// audit/verification artifacts).
func (s *Store) WriteAudit(runID model.RunID, verdict model.AuditVerdict) (string, error) {
	data, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit verdict: %w", err)
	}
	return s.writeFileCompressed(runID, "audit.json", data)
}

// WriteDeployment persists a successful DeploymentRecord as deployment.json.
func (s *Store) WriteDeployment(runID model.RunID, rec model.DeploymentRecord) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal deployment record: %w", err)
	}
	return s.writeFile(runID, "deployment.json", data)
}

// deploymentErrorRecord is the shape written to deployment.json when the
// Deploying stage fails (spec.md §6: "DeploymentRecord or error record" —
// never a placeholder DeploymentRecord, per the silent-success invariant).
type deploymentErrorRecord struct {
	Error model.ErrorRecord `json:"error"`
}

// WriteDeploymentFailure persists the error record in place of a
// DeploymentRecord when deployment never succeeded.
func (s *Store) WriteDeploymentFailure(runID model.RunID, rec model.ErrorRecord) (string, error) {
	data, err := json.MarshalIndent(deploymentErrorRecord{Error: rec}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal deployment failure: %w", err)
	}
	return s.writeFile(runID, "deployment.json", data)
}

// verificationRecord is the on-disk shape of verification.json: the
// adapter's Result plus the timestamp required by S6 ("a final timestamp").
type verificationRecord struct {
	Outcome   string `json:"outcome"`
	GUID      string `json:"guid,omitempty"`
	Detail    string `json:"detail,omitempty"`
	RecordedAt string `json:"recordedAt"`
}

// WriteVerification persists a verification outcome as verification.json.
func (s *Store) WriteVerification(runID model.RunID, outcome, guid, detail, recordedAtRFC3339 string) (string, error) {
	data, err := json.MarshalIndent(verificationRecord{
		Outcome:    outcome,
		GUID:       guid,
		Detail:     detail,
		RecordedAt: recordedAtRFC3339,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal verification record: %w", err)
	}
	return s.writeFileCompressed(runID, "verification.json", data)
}

// WriteContext persists the full WorkflowState dump as context.json, the
// payload also served by `forge context` and the status server's
// /context/{runID} endpoint.
func (s *Store) WriteContext(state *model.WorkflowState) (string, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal workflow context: %w", err)
	}
	return s.writeFile(state.RunID, "context.json", data)
}

// ReadArtifact reads a named artifact back for a run. It is used by the
// status server's read-only /artifacts endpoint and by `forge context` when
// history is disabled; the orchestrator
// itself never reads an artifact it just wrote (spec.md §9: "no callback
// from artifact store into orchestrator").
func (s *Store) ReadArtifact(runID model.RunID, name string) ([]byte, error) {
	path := filepath.Join(s.runDir(runID), filepath.Base(name))
	return os.ReadFile(path)
}

func (s *Store) writeFile(runID model.RunID, name string, data []byte) (string, error) {
	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	finalPath := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp file into place: %w", err)
	}
	return finalPath, nil
}

// writeFileCompressed writes the plain file atomically, then a best-effort
// gzip-compressed duplicate (name+".gz") alongside it. The plain file is the
// contract named by spec.md §6; the compressed duplicate is a space-saving
// archival copy and is never read back by the pipeline itself.
func (s *Store) writeFileCompressed(runID model.RunID, name string, data []byte) (string, error) {
	path, err := s.writeFile(runID, name, data)
	if err != nil {
		return "", err
	}

	gzPath := filepath.Join(s.runDir(runID), name+".gz")
	f, err := os.Create(gzPath)
	if err != nil {
		return path, nil // archival copy is best-effort, never fatal
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err == nil {
		gw.Close()
	}
	return path, nil
}
