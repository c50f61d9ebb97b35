// Package tasker implements the abstract container-engine client: pull,
// build, tag, push, commit, inspect and remove operations, backed by a real
// Docker daemon connection. Grounded on streamspace-dev-streamspace's
// docker-agent, which drives the same operations through docker/docker/client
// against a configurable daemon host.
package tasker

import "context"

// Tasker is the concrete-side mirror of plugin.Tasker: the same seven
// operations, defined independently so this package never imports the
// plugin package (plugin.Tasker is satisfied structurally).
type Tasker interface {
	Pull(ctx context.Context, ref string, insecure bool) error
	Build(ctx context.Context, contextDir, recipePath, tag string) (string, error)
	Tag(ctx context.Context, imageID, ref string) error
	Push(ctx context.Context, ref string, insecure bool) error
	Commit(ctx context.Context, containerID, ref string) (string, error)
	Inspect(ctx context.Context, ref string) (map[string]any, error)
	Remove(ctx context.Context, ref string) error
}
