package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "YG_TEST_FOO")
	unsetEnv(t, "YG_TEST_QUOTED")
	unsetEnv(t, "YG_TEST_SINGLE")
	unsetEnv(t, "YG_TEST_EMPTY")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "" +
		"# comment\n" +
		"YG_TEST_FOO=bar\n" +
		"YG_TEST_QUOTED=\"baz\"\n" +
		"YG_TEST_SINGLE='qux'\n" +
		"YG_TEST_EMPTY=\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("YG_TEST_FOO"); got != "bar" {
		t.Fatalf("YG_TEST_FOO expected bar, got %q", got)
	}
	if got := os.Getenv("YG_TEST_QUOTED"); got != "baz" {
		t.Fatalf("YG_TEST_QUOTED expected baz, got %q", got)
	}
	if got := os.Getenv("YG_TEST_SINGLE"); got != "qux" {
		t.Fatalf("YG_TEST_SINGLE expected qux, got %q", got)
	}
	if got := os.Getenv("YG_TEST_EMPTY"); got != "" {
		t.Fatalf("YG_TEST_EMPTY expected empty, got %q", got)
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("YG_TEST_FOO", "existing")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("YG_TEST_FOO=bar\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("YG_TEST_FOO"); got != "existing" {
		t.Fatalf("YG_TEST_FOO expected existing, got %q", got)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}

func TestLoadEnvMissingFileIgnored(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
