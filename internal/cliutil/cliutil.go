// Package cliutil maps pipeline errors to CLI exit codes and renders the
// operator-facing error banner spec.md §6 describes (kind, message, and,
// when present, remediation guidance).
package cliutil

import (
	"errors"
	"fmt"
	"io"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// PrintError writes the error banner for err to w and returns the process
// exit code spec.md §6 assigns to its ErrorKind (1 for any error that is
// not a *model.PipelineError).
func PrintError(w io.Writer, err error) int {
	var perr *model.PipelineError
	if !errors.As(err, &perr) {
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(w, "error [%s]: %s\n", perr.Kind, perr.Message)
	if perr.Remediation != "" {
		fmt.Fprintf(w, "  remediation: %s\n", perr.Remediation)
	}
	if perr.Cause != nil {
		fmt.Fprintf(w, "  cause: %v\n", perr.Cause)
	}
	return perr.Kind.ExitCode()
}
