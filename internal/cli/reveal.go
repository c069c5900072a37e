package cli

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// RevealCommand returns the command that shows path in the platform's file
// manager. Where selecting a file is unsupported the parent directory is
// opened instead.
func RevealCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{"-R", path}
	case "windows":
		return "explorer", []string{"/select," + path}
	default:
		return "xdg-open", []string{filepath.Dir(path)}
	}
}

// Reveal shows path in the file manager without waiting for it to exit.
func Reveal(path string) error {
	name, args := RevealCommand(runtime.GOOS, path)
	if err := exec.Command(name, args...).Start(); err != nil { //nolint:gosec // arguments come from listed results
		return fmt.Errorf("failed to reveal %s: %w", path, err)
	}
	return nil
}
