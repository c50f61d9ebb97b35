package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontainer-orchestrator/buildctl/internal/config"
	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
	"github.com/opencontainer-orchestrator/buildctl/internal/sourcespec"
)

type fakeTasker struct {
	built bool
}

func (f *fakeTasker) Pull(ctx context.Context, ref string, insecure bool) error { return nil }
func (f *fakeTasker) Build(ctx context.Context, contextDir, recipePath, tag string) (string, error) {
	f.built = true
	return "sha256:built", nil
}
func (f *fakeTasker) Tag(ctx context.Context, imageID, ref string) error  { return nil }
func (f *fakeTasker) Push(ctx context.Context, ref string, insecure bool) error { return nil }
func (f *fakeTasker) Commit(ctx context.Context, containerID, ref string) (string, error) {
	return "", nil
}
func (f *fakeTasker) Inspect(ctx context.Context, ref string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (f *fakeTasker) Remove(ctx context.Context, ref string) error { return nil }

func TestBuildInProcess_DelegatesToWorkflow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM fedora:40\n"), 0o644))

	req := &config.BuildRequest{
		Source: sourcespec.Spec{Provider: "path", URI: dir},
		Image:  "registry.example.com/app:latest",
	}
	reg := plugin.NewRegistry(zerolog.Nop())
	tsk := &fakeTasker{}

	result, err := BuildInProcess(context.Background(), req, reg, tsk, "", zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, tsk.built)
}

func TestBuildUsingHostEngine_RequiresBuilderImage(t *testing.T) {
	_, err := BuildUsingHostEngine(context.Background(), &config.BuildRequest{}, BuilderSpec{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builder image")
}

func TestBuildInPrivilegedContainer_RequiresBuilderImage(t *testing.T) {
	_, err := BuildInPrivilegedContainer(context.Background(), &config.BuildRequest{}, BuilderSpec{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builder image")
}
