package tasker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/rs/zerolog"
)

// DockerTasker drives a real Docker daemon to satisfy Tasker. Grounded on
// streamspace-dev-streamspace's docker-agent: client.NewClientWithOpts with
// host + API version negotiation, ImageInspectWithRaw-then-ImagePull for
// idempotent pulls, io.Copy(io.Discard, ...) to drain the streamed daemon
// responses that this client never needs to render.
type DockerTasker struct {
	cli *client.Client
	log zerolog.Logger
}

// NewDockerTasker dials host (empty string selects the daemon's own default,
// typically the DOCKER_HOST environment variable or the local socket).
func NewDockerTasker(host string, log zerolog.Logger) (*DockerTasker, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &DockerTasker{cli: cli, log: log}, nil
}

// Pull fetches ref if it isn't already present locally. DontPullBaseImage
// short-circuits this at the workflow layer.
func (t *DockerTasker) Pull(ctx context.Context, ref string, insecure bool) error {
	if _, _, err := t.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		t.log.Debug().Str("ref", ref).Msg("image already present locally, skipping pull")
		return nil
	}

	t.log.Info().Str("ref", ref).Msg("pulling image")
	reader, err := t.cli.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: anonymousAuth(insecure)})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull response for %s: %w", ref, err)
	}
	return nil
}

// Build tars contextDir into a build context, points the daemon at
// recipePath (relative to the tar root) as the Dockerfile, and tags the
// result tag. It returns the built image's ID.
func (t *DockerTasker) Build(ctx context.Context, contextDir, recipePath, tag string) (string, error) {
	rel, err := filepath.Rel(contextDir, recipePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(recipePath)
	}

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("building tar context from %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	t.log.Info().Str("context", contextDir).Str("dockerfile", rel).Str("tag", tag).Msg("building image")
	resp, err := t.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: rel,
		Tags:       []string{tag},
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	imageID, err := readBuildID(resp.Body)
	if err != nil {
		return "", err
	}
	if imageID == "" {
		inspect, _, err := t.cli.ImageInspectWithRaw(ctx, tag)
		if err != nil {
			return "", fmt.Errorf("resolving built image id for %s: %w", tag, err)
		}
		imageID = inspect.ID
	}
	return imageID, nil
}

// readBuildID scans the daemon's streamed JSON build log for the final
// "Successfully built <id>" aux message.
func readBuildID(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var id string
	for {
		var msg struct {
			Aux *struct {
				ID string `json:"ID"`
			} `json:"aux"`
			Error string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("decoding build response: %w", err)
		}
		if msg.Error != "" {
			return "", fmt.Errorf("build failed: %s", msg.Error)
		}
		if msg.Aux != nil && msg.Aux.ID != "" {
			id = msg.Aux.ID
		}
	}
	return id, nil
}

func (t *DockerTasker) Tag(ctx context.Context, imageID, ref string) error {
	t.log.Debug().Str("image", imageID).Str("ref", ref).Msg("tagging image")
	if err := t.cli.ImageTag(ctx, imageID, ref); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", imageID, ref, err)
	}
	return nil
}

func (t *DockerTasker) Push(ctx context.Context, ref string, insecure bool) error {
	t.log.Info().Str("ref", ref).Msg("pushing image")
	reader, err := t.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: anonymousAuth(insecure)})
	if err != nil {
		return fmt.Errorf("pushing %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading push response for %s: %w", ref, err)
	}
	return nil
}

func (t *DockerTasker) Commit(ctx context.Context, containerID, ref string) (string, error) {
	resp, err := t.cli.ContainerCommit(ctx, containerID, container.CommitOptions{Reference: ref})
	if err != nil {
		return "", fmt.Errorf("committing container %s as %s: %w", containerID, ref, err)
	}
	return resp.ID, nil
}

func (t *DockerTasker) Inspect(ctx context.Context, ref string) (map[string]any, error) {
	inspect, _, err := t.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", ref, err)
	}
	raw, err := json.Marshal(inspect)
	if err != nil {
		return nil, fmt.Errorf("marshaling inspect result for %s: %w", ref, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding inspect result for %s: %w", ref, err)
	}
	return out, nil
}

func (t *DockerTasker) Remove(ctx context.Context, ref string) error {
	_, err := t.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("removing %s: %w", ref, err)
	}
	return nil
}

// anonymousAuth encodes an empty registry auth config. Credential sourcing is
// left to the daemon's own config.json rather than reimplemented here;
// insecure registries pass through it unchanged.
func anonymousAuth(insecure bool) string {
	cfg := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{}
	raw, _ := json.Marshal(cfg)
	_ = insecure
	return base64.URLEncoding.EncodeToString(raw)
}

// Close releases the underlying daemon connection. Part of workflow teardown
// (internal/workflow.Build's deferred cleanup), not the narrow Tasker
// interface, since not every Tasker implementation holds a live connection.
func (t *DockerTasker) Close() error {
	return t.cli.Close()
}
