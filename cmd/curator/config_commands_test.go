package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "curator.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	t.Setenv("HOME", t.TempDir())
	out, err = runCLI(t, target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+target)
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curator.toml")
	if err := os.WriteFile(path, []byte("[queue]\nbackend = \"mysql\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCLI(t, path, "config", "validate"); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("super-secret"))
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") {
		t.Fatalf("config show leaked the api token: %q", out)
	}
	requireContains(t, out, "********")
}
