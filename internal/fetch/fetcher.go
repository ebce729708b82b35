// Package fetch retrieves definition bundles from repositories and merges
// them into the registry.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/registry"
	"github.com/orchestria/orchestria/internal/schema"
)

// DefaultRef is fetched when no ref is given.
const DefaultRef = "HEAD"

// Source materialises a repository at a ref on local disk.
type Source interface {
	// Checkout returns the directory holding source at ref and the commit
	// the ref resolved to.
	Checkout(ctx context.Context, source, ref string) (dir, commit string, err error)
}

// Merger commits a validated bundle; *registry.Store implements it.
type Merger interface {
	Merge(ctx context.Context, p schema.Provenance, dir string, b *bundle.Bundle) (registry.MergeReport, error)
}

// Result describes one completed fetch.
type Result struct {
	Provenance schema.Provenance
	Commit     string
	Dir        string
	Report     registry.MergeReport
}

// Fetcher applies the bundle of a repository to the registry.
type Fetcher struct {
	source Source
	store  Merger
}

func NewFetcher(source Source, store Merger) *Fetcher {
	return &Fetcher{source: source, store: store}
}

// Fetch checks out source at ref, validates its bundle and merges it. A
// ConfigError or a collision leaves the registry untouched.
func (f *Fetcher) Fetch(ctx context.Context, source, ref string) (Result, error) {
	source = NormalizeSource(source)
	if ref == "" {
		ref = DefaultRef
	}

	dir, commit, err := f.source.Checkout(ctx, source, ref)
	if err != nil {
		return Result{}, fmt.Errorf("checkout %s@%s: %w", source, ref, err)
	}
	slog.Debug("Checked out bundle source", "source", source, "ref", ref, "commit", commit, "dir", dir)

	b, err := bundle.ReadFile(dir)
	if err != nil {
		return Result{}, err
	}

	p := schema.NewProvenance(source, ref)
	report, err := f.store.Merge(ctx, p, dir, b)
	if err != nil {
		return Result{}, err
	}
	slog.Info("Bundle merged", "provenance", p.String(), "added", len(report.Added), "updated", len(report.Updated))
	return Result{Provenance: p, Commit: commit, Dir: dir, Report: report}, nil
}

// NormalizeSource makes local repository paths absolute so the same checkout
// always yields the same provenance. Remote URLs are returned unchanged.
func NormalizeSource(source string) string {
	if source == "" {
		source = "."
	}
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		if abs, err := filepath.Abs(source); err == nil {
			return filepath.Clean(abs)
		}
	}
	return source
}
