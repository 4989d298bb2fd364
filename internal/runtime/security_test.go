package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckKeyFilePermissionsWarnsOnBroadPermissions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte("key"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod key file: %v", err)
	}

	warn, err := CheckKeyFilePermissions(path)
	if err != nil {
		t.Fatalf("CheckKeyFilePermissions error: %v", err)
	}
	if !strings.Contains(warn, "overly broad permissions") {
		t.Fatalf("expected warning for broad permissions, got %q", warn)
	}
}

func TestCheckKeyFilePermissionsNoWarningForSecureMode(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte("key"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	warn, err := CheckKeyFilePermissions(path)
	if err != nil {
		t.Fatalf("CheckKeyFilePermissions error: %v", err)
	}
	if warn != "" {
		t.Fatalf("expected no warning, got %q", warn)
	}
}

func TestCheckKeyFilePermissionsRejectsDirectory(t *testing.T) {
	t.Parallel()
	if _, err := CheckKeyFilePermissions(t.TempDir()); err == nil {
		t.Fatal("expected error for directory")
	}
}
