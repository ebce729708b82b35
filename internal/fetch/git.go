package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitSource checks repositories out with the git command line. Each source
// has one clone under ReposDir, used only to fetch and resolve refs; code is
// checked out into a worktree per resolved commit. A worktree is never moved
// to another commit, so registered tools keep running the code they were
// fetched with whatever later fetches of the same ref do.
type GitSource struct {
	ReposDir string
	// Git is the git executable; "git" when empty.
	Git string
}

func (g *GitSource) Checkout(ctx context.Context, source, ref string) (string, string, error) {
	base := filepath.Join(g.ReposDir, shortHash(source, 16))
	clone := filepath.Join(base, "clone")

	if _, err := os.Stat(filepath.Join(clone, ".git")); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", "", fmt.Errorf("create repos dir: %w", err)
		}
		if _, err := g.run(ctx, "", "clone", "--quiet", "--no-checkout", source, clone); err != nil {
			return "", "", err
		}
	} else if _, err := g.run(ctx, clone, "fetch", "--quiet", "--tags", "--force", "origin"); err != nil {
		return "", "", err
	}

	commit, err := g.resolve(ctx, clone, ref)
	if err != nil {
		return "", "", err
	}

	dir, err := filepath.Abs(filepath.Join(base, commit))
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return dir, commit, nil
	}
	// Forget worktrees whose directories were removed by hand.
	if _, err := g.run(ctx, clone, "worktree", "prune"); err != nil {
		return "", "", err
	}
	if _, err := g.run(ctx, clone, "worktree", "add", "--quiet", "--detach", dir, commit); err != nil {
		return "", "", err
	}
	return dir, commit, nil
}

// resolve prefers the remote-tracking ref, which fetch keeps current, over a
// local branch of the same name.
func (g *GitSource) resolve(ctx context.Context, dir, ref string) (string, error) {
	for _, candidate := range []string{"origin/" + ref, ref} {
		out, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", candidate+"^{commit}")
		if err == nil {
			return strings.TrimSpace(out), nil
		}
	}
	return "", fmt.Errorf("ref %q not found", ref)
}

func shortHash(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}

func (g *GitSource) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Git
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}
