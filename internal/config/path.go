package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/nsfw-sweep/internal/common"
)

// ExpandPath expands a leading ~ and $VAR references. The SQLite in-memory
// name is returned as is.
func ExpandPath(path string) string {
	switch {
	case path == "" || path == ":memory:":
		return path
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// ScanDirectory turns a directory argument into a clean absolute path, so
// history and reveal name the same folder however it was typed.
func ScanDirectory(dir string) (string, error) {
	expanded := ExpandPath(strings.TrimSpace(dir))
	if expanded == "" {
		return "", fmt.Errorf("%w: directory to scan", common.ErrMissingConfig)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return abs, nil
}
