package symbolic

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeWorkspace creates a private temp directory containing source.sol so
// the analyzer binary can operate on a real file path. The returned cleanup
// func removes the directory; callers must defer it.
func writeWorkspace(body string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "contractforge-symbolic-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp workspace: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "source.sol")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write source file: %w", err)
	}
	return dir, cleanup, nil
}

// analyzerEnv builds the analyzer subprocess environment: the parent's
// environment with PYTHONIOENCODING, LC_ALL and LANG overridden to UTF-8, so
// tool output encoding does not depend on the host's configured locale.
func analyzerEnv() []string {
	env := os.Environ()
	env = append(env,
		"PYTHONIOENCODING=utf-8",
		"LC_ALL=C.UTF-8",
		"LANG=C.UTF-8",
	)
	return env
}
