package sourcespec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// GitFetcher resolves a {provider: git} spec by shelling out to the git
// binary rather than vendoring a protocol library.
type GitFetcher struct{}

func (f *GitFetcher) Fetch(ctx context.Context, spec Spec) (Resolved, error) {
	root, err := os.MkdirTemp("", "buildctl-src-*")
	if err != nil {
		return Resolved{}, fmt.Errorf("creating source working tree: %w", err)
	}

	if err := f.clone(ctx, spec, root); err != nil {
		os.RemoveAll(root)
		return Resolved{}, err
	}
	if spec.Ref != "" {
		if err := f.checkout(ctx, spec.Ref, root); err != nil {
			os.RemoveAll(root)
			return Resolved{}, err
		}
	}

	recipe := spec.DockerfilePath
	if recipe == "" {
		recipe = defaultDockerfilePath(root, "")
	} else {
		recipe = defaultDockerfilePath(root, recipe)
	}

	return Resolved{RootPath: root, RecipePath: recipe, Cleanup: func() error { return os.RemoveAll(root) }}, nil
}

func (f *GitFetcher) clone(ctx context.Context, spec Spec, dest string) error {
	args := []string{"clone", "--depth", "1"}
	if spec.Ref != "" {
		// a shallow clone pinned directly to the ref avoids a second fetch
		// for the common case of a branch or tag name.
		args = append(args, "--branch", spec.Ref)
	}
	args = append(args, spec.URI, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if spec.Ref != "" {
			// --branch only accepts branch and tag names; clone the default
			// branch instead and leave the ref to checkout.
			return f.clone(ctx, Spec{URI: spec.URI}, dest)
		}
		return fmt.Errorf("git clone %s: %w: %s", spec.URI, err, stderr.String())
	}
	return nil
}

// checkout is retried as a fallback for refs clone --branch can't resolve
// directly (arbitrary commit SHAs): a shallow fetch of ref plus checkout.
func (f *GitFetcher) checkout(ctx context.Context, ref, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "checkout", ref)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err == nil {
		return nil
	}

	fetch := exec.CommandContext(ctx, "git", "-C", dir, "fetch", "--depth", "1", "origin", ref)
	fetch.Stderr = &stderr
	if err := fetch.Run(); err != nil {
		return fmt.Errorf("git fetch %s: %w: %s", ref, err, stderr.String())
	}

	stderr.Reset()
	again := exec.CommandContext(ctx, "git", "-C", dir, "checkout", "FETCH_HEAD")
	again.Stderr = &stderr
	if err := again.Run(); err != nil {
		return fmt.Errorf("git checkout %s: %w: %s", ref, err, stderr.String())
	}
	return nil
}
