package runtime

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckKeyFilePermissions returns a warning when a TLS private key is
// readable by group or others.
func CheckKeyFilePermissions(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("stat key file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("key file path %q is a directory", clean)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Sprintf("tls key file %q has overly broad permissions %o; recommended mode is 0600", clean, info.Mode().Perm()), nil
	}
	return "", nil
}
