// Package sourcespec resolves a source specification to a local working
// tree with a known recipe path.
package sourcespec

import (
	"context"
	"fmt"
	"path/filepath"
)

// Spec is the mapping consumed once at workflow start: {provider, uri} is
// required, {ref, dockerfile_path, args} are optional.
type Spec struct {
	Provider       string `yaml:"provider"`
	URI            string `yaml:"uri"`
	Ref            string `yaml:"ref,omitempty"`
	DockerfilePath string `yaml:"dockerfile_path,omitempty"`
	Args           map[string]string `yaml:"args,omitempty"`
}

// Resolved is what Fetch produces: the fetched tree's root and the
// Dockerfile (or equivalent recipe) path inside it.
type Resolved struct {
	RootPath   string
	RecipePath string
	// Cleanup is non-nil when RootPath is a scratch directory the Fetcher
	// created (e.g. GitFetcher's clone target) and should be removed once
	// the build is done. LocalFetcher leaves this nil since RootPath is the
	// caller's own directory.
	Cleanup func() error
}

// Fetcher resolves a Spec to a Resolved working tree. Implementations must
// be idempotent for a given spec within one workflow run.
type Fetcher interface {
	Fetch(ctx context.Context, spec Spec) (Resolved, error)
}

// ErrUnknownProvider is returned by New and Preflight when the provider is
// none of "git", "path" or "local".
type ErrUnknownProvider struct {
	Provider string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown source provider %q", e.Provider)
}

// New selects a Fetcher for spec.Provider. "git" and "path"/"local" are the
// two providers this orchestrator ships; a manifest-declared input plugin
// (internal/plugin) can still produce an arbitrary SourceSpec that one of
// these two satisfies — provider selection happens here, not in the plugin
// layer, so every caller resolves sources the same way regardless of how
// the spec was obtained.
func New(provider string) (Fetcher, error) {
	switch provider {
	case "git":
		return &GitFetcher{}, nil
	case "path", "local":
		return &LocalFetcher{}, nil
	default:
		return nil, &ErrUnknownProvider{Provider: provider}
	}
}

func defaultDockerfilePath(root, subdir string) string {
	if subdir == "" {
		return filepath.Join(root, "Dockerfile")
	}
	return filepath.Join(root, subdir, "Dockerfile")
}
