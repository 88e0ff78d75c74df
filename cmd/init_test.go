package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitCommandScaffoldsFilesIntoEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	initCmd := newInitCmd()
	initCmd.SetArgs([]string{dir})
	require := func(err error) {
		if err != nil {
			t.Fatalf("init command failed: %v", err)
		}
	}
	require(initCmd.Execute())

	for _, name := range []string{"Dockerfile", "test.go"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to be scaffolded: %v", path, err)
		}
	}
}

func TestInitCommandDoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	dockerfilePath := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte("custom content"), 0o644); err != nil {
		t.Fatal(err)
	}

	initCmd := newInitCmd()
	initCmd.SetArgs([]string{dir})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	content, err := os.ReadFile(dockerfilePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "custom content" {
		t.Errorf("expected existing Dockerfile to be left untouched, got %q", string(content))
	}
}

func TestInitCommandDefaultsToCurrentDirectory(t *testing.T) {
	initCmd := newInitCmd()
	if initCmd.Use != "init [build-path]" {
		t.Errorf("unexpected Use: %s", initCmd.Use)
	}
}
