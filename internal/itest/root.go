//go:build integration

package itest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const modulePath = "github.com/forPelevin/storyreel"

// findRepoRoot walks up from the working directory to the go.mod that
// declares this module.
func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		b, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil && bytes.Contains(b, []byte("module "+modulePath+"\n")) {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("no go.mod for %s above %s", modulePath, wd)
		}
	}
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()
	root, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return root
}
