package sourcespec

import (
	"context"
	"fmt"
	"os"
)

// LocalFetcher resolves a {provider: path} spec by using an existing local
// directory directly: no copy, no temp dir, since the caller already owns
// the tree's lifetime.
type LocalFetcher struct{}

func (f *LocalFetcher) Fetch(ctx context.Context, spec Spec) (Resolved, error) {
	info, err := os.Stat(spec.URI)
	if err != nil {
		return Resolved{}, fmt.Errorf("local source path %q: %w", spec.URI, err)
	}
	if !info.IsDir() {
		return Resolved{}, fmt.Errorf("local source path %q is not a directory", spec.URI)
	}

	recipe := defaultDockerfilePath(spec.URI, spec.DockerfilePath)
	if _, err := os.Stat(recipe); err != nil {
		return Resolved{}, fmt.Errorf("recipe not found at %q: %w", recipe, err)
	}
	return Resolved{RootPath: spec.URI, RecipePath: recipe}, nil
}
