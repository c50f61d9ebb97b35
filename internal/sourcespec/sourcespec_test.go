package sourcespec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsFetcherByProvider(t *testing.T) {
	f, err := New("git")
	require.NoError(t, err)
	assert.IsType(t, &GitFetcher{}, f)

	f, err = New("path")
	require.NoError(t, err)
	assert.IsType(t, &LocalFetcher{}, f)

	f, err = New("local")
	require.NoError(t, err)
	assert.IsType(t, &LocalFetcher{}, f)

	_, err = New("s3")
	require.Error(t, err)
	var unknown *ErrUnknownProvider
	assert.ErrorAs(t, err, &unknown)
}

func TestLocalFetcher_ResolvesRecipePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM fedora\n"), 0o644))

	f := &LocalFetcher{}
	resolved, err := f.Fetch(context.TODO(), Spec{Provider: "path", URI: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, resolved.RootPath)
	assert.Equal(t, filepath.Join(dir, "Dockerfile"), resolved.RecipePath)
}

func TestLocalFetcher_SubdirDockerfilePath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "docker")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "Dockerfile"), []byte("FROM fedora\n"), 0o644))

	f := &LocalFetcher{}
	resolved, err := f.Fetch(context.TODO(), Spec{Provider: "path", URI: dir, DockerfilePath: "docker"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, "Dockerfile"), resolved.RecipePath)
}

func TestLocalFetcher_MissingRecipeErrors(t *testing.T) {
	dir := t.TempDir()
	f := &LocalFetcher{}
	_, err := f.Fetch(context.TODO(), Spec{Provider: "path", URI: dir})
	require.Error(t, err)
}

func TestPreflight(t *testing.T) {
	assert.NoError(t, Preflight("path"))
	assert.NoError(t, Preflight("local"))
	_ = Preflight("git") // presence of git on the test host is environment-dependent
	assert.Error(t, Preflight("s3"))
}
