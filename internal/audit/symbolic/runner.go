// Package symbolic runs an external static-analysis tool (e.g. a
// Slither-style symbolic analyzer) as a subprocess and parses its JSON
// findings (spec.md §4.2 "Symbolic runner"). Grounded on the subprocess
// invocation shape of the teacher's TypeScript worker wrapper: bytes.Buffer
// stdout/stderr capture, exec.CommandContext, and JSON-from-stdout parsing.
package symbolic

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// toolFinding is the documented JSON shape the external analyzer emits on
// stdout, one per reported issue.
type toolFinding struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Evidence   string `json:"evidence"`
}

type toolOutput struct {
	Findings []toolFinding `json:"findings"`
}

// Runner invokes an external analyzer binary against the source written to a
// temp workspace, with a hard per-run timeout and UTF-8-safe I/O handling.
type Runner struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRunner builds a Runner. A zero Timeout defaults to 60s.
func NewRunner(binary string, args []string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Binary: binary, Args: args, Timeout: timeout, Logger: logger}
}

// Name identifies this runner as the symbolic detector.
func (r *Runner) Name() string { return "symbolic" }

// Run writes src to a temp file and invokes the configured binary against
// it, enforcing a hard timeout and tolerating non-zero exit codes as long as
// stdout carries interpretable JSON (spec.md §4.2: "a non-zero exit with
// valid JSON on stdout is not a RunnerError"). Non-JSON or empty stdout
// yields zero findings plus a logged warning, never a pipeline failure: the
// consensus step treats a silent runner the same as "found nothing".
func (r *Runner) Run(ctx context.Context, src model.ContractSource) ([]model.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	tmpDir, cleanup, err := writeWorkspace(src.Body)
	if err != nil {
		return nil, model.NewError(model.KindRunnerError, "prepare symbolic analyzer workspace", err)
	}
	defer cleanup()

	args := append(append([]string{}, r.Args...), tmpDir)
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Env = analyzerEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	stderrText := decodeUTF8Lenient(stderr.Bytes())
	if stderrText != "" {
		r.Logger.Debug("symbolic analyzer stderr", slog.String("output", stderrText))
	}

	stdoutText := decodeUTF8Lenient(stdout.Bytes())
	if strings.TrimSpace(stdoutText) == "" {
		r.Logger.Warn("symbolic analyzer produced no output",
			slog.String("error", errString(runErr)))
		return nil, nil
	}

	var out toolOutput
	if err := json.Unmarshal([]byte(stdoutText), &out); err != nil {
		r.Logger.Warn("symbolic analyzer output was not valid JSON, treating as zero findings",
			slog.String("error", err.Error()))
		return nil, nil
	}

	findings := make([]model.Finding, 0, len(out.Findings))
	for _, tf := range out.Findings {
		kind, ok := model.NormalizeVulnKind(tf.Kind)
		if !ok {
			continue
		}
		findings = append(findings, model.Finding{
			Kind:       kind,
			Severity:   model.ParseSeverity(tf.Severity),
			Confidence: model.ParseDetectorConfidence(tf.Confidence),
			Location: &model.Location{
				File:   tf.File,
				Line:   tf.Line,
				Column: tf.Column,
			},
			Detector: "symbolic",
			Evidence: tf.Evidence,
		})
	}
	return findings, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// decodeUTF8Lenient replaces invalid UTF-8 sequences rather than failing,
// mirroring a Python subprocess pipe opened with errors="replace": external
// tool output must never abort the pipeline over an encoding glitch.
func decodeUTF8Lenient(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune('�')
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
