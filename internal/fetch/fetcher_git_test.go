package fetch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/schema"
	"github.com/orchestria/orchestria/internal/tools"
)

const echoBundle = `
tools:
  - name: Echo
    description: Reports its version
    language: process
    entrypoint: ./echo.sh
    inputs_schema: {type: object}
`

func writeScript(t *testing.T, repo, body string) {
	t.Helper()
	path := filepath.Join(repo, "echo.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestFetch_FailedRefetchKeepsRegisteredCode(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	repo := t.TempDir()
	gitCmd(t, repo, "init", "--quiet")
	writeScript(t, repo, `echo '{"v":1}'`)
	if err := os.WriteFile(filepath.Join(repo, bundle.FileName), []byte(echoBundle), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "--quiet", "-m", "echo v1")

	store := newTestStore(t)
	f := NewFetcher(&GitSource{ReposDir: t.TempDir()}, store)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, repo, ""); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}

	writeScript(t, repo, `echo '{"v":2}'`)
	if err := os.WriteFile(filepath.Join(repo, bundle.FileName), []byte("tools: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "--quiet", "-m", "echo v2 with a broken bundle")

	_, err := f.Fetch(ctx, repo, "")
	var cfgErr *schema.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError from the broken bundle, got %v", err)
	}

	def, err := store.Tool("Echo")
	if err != nil {
		t.Fatalf("Echo is no longer registered: %v", err)
	}
	res := tools.NewInvoker(10, tools.Terminal{}).Invoke(ctx, def, nil)
	if !res.Success {
		t.Fatalf("Echo failed: %v", res.Err)
	}
	if v, _ := res.Payload["v"].(float64); v != 1 {
		t.Errorf("Echo answered %v, want the code it was registered with", res.Payload)
	}
}
