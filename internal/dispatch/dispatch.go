// Package dispatch implements the three execution-environment variants a
// build can run under: in-process against the ambient tasker, inside a
// container that shares the host's engine socket, and inside a privileged
// container running its own nested engine. All three drive the same
// workflow.Workflow and return the same result shape; only how the
// tasker's daemon is reached differs.
package dispatch

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/opencontainer-orchestrator/buildctl/internal/config"
	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
	"github.com/opencontainer-orchestrator/buildctl/internal/tasker"
	"github.com/opencontainer-orchestrator/buildctl/internal/workflow"
)

// BuilderSpec configures the container-based variants. BuilderImage must
// contain this binary on PATH; the launched container re-enters it with
// "build --config <mounted request> --env in-process".
type BuilderSpec struct {
	BuilderImage     string
	HostDockerSocket string
	PushBuildrootTo  string
	Env              []string
}

// BuildInProcess runs the workflow directly against tsk, the ambient
// container engine client. artifactsDir, when non-empty, enables
// build.json/timing.json persistence.
func BuildInProcess(ctx context.Context, req *config.BuildRequest, reg *plugin.Registry, tsk tasker.Tasker, artifactsDir string, log zerolog.Logger) (*workflow.Result, error) {
	wf := workflow.New(req, reg, tsk, log)
	if artifactsDir != "" {
		wf.SetArtifactsDir(artifactsDir)
	}
	return wf.Build(ctx)
}

// BuildUsingHostEngine launches spec.BuilderImage with the host's engine
// socket bind-mounted inside, and runs the workflow in there against that
// socket. The built image lands on the host engine directly, since the
// socket is shared.
func BuildUsingHostEngine(ctx context.Context, req *config.BuildRequest, spec BuilderSpec, log zerolog.Logger) (*workflow.Result, error) {
	socket := spec.HostDockerSocket
	if socket == "" {
		socket = "/var/run/docker.sock"
	}
	mounts := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: socket,
		Target: "/var/run/docker.sock",
	}}
	return runBuilderContainer(ctx, req, spec, log, false, mounts)
}

// BuildInPrivilegedContainer launches spec.BuilderImage with elevated
// privileges so it can start its own nested engine and run the workflow
// against that. If spec.PushBuildrootTo is set, the builder container is
// committed and pushed as the "buildroot" image after a successful build.
func BuildInPrivilegedContainer(ctx context.Context, req *config.BuildRequest, spec BuilderSpec, log zerolog.Logger) (*workflow.Result, error) {
	return runBuilderContainer(ctx, req, spec, log, true, nil)
}

func runBuilderContainer(ctx context.Context, req *config.BuildRequest, spec BuilderSpec, log zerolog.Logger, privileged bool, mounts []mount.Mount) (*workflow.Result, error) {
	if spec.BuilderImage == "" {
		return nil, fmt.Errorf("dispatch: builder image is required for a containerized build")
	}

	cli, err := client.NewClientWithOpts(client.WithAPIVersionNegotiation(), client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	defer cli.Close()

	reqFile, err := writeRequestFile(req)
	if err != nil {
		return nil, err
	}
	defer os.Remove(reqFile)
	mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: reqFile, Target: "/buildctl/request.yaml", ReadOnly: true})

	if req.Source.Provider == "local" || req.Source.Provider == "path" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: req.Source.URI, Target: req.Source.URI})
	}

	containerName := "buildctl-" + uuid.NewString()
	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: spec.BuilderImage,
			Cmd:   []string{"buildctl", "build", "--config", "/buildctl/request.yaml", "--env", "in-process"},
			Env:   spec.Env,
		},
		&container.HostConfig{Mounts: mounts, Privileged: privileged},
		nil, nil, containerName,
	)
	if err != nil {
		return nil, fmt.Errorf("creating builder container: %w", err)
	}
	defer cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting builder container: %w", err)
	}
	streamContainerLogs(ctx, cli, created.ID, log)

	statusCh, errCh := cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("waiting for builder container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	result := &workflow.Result{Success: exitCode == 0}
	if !result.Success {
		log.Warn().Int64("exit_code", exitCode).Msg("builder container exited with failure")
		return result, nil
	}

	if spec.PushBuildrootTo != "" {
		if err := commitAndPushBuildroot(ctx, cli, created.ID, spec.PushBuildrootTo, log); err != nil {
			return result, err
		}
	}
	return result, nil
}

func writeRequestFile(req *config.BuildRequest) (string, error) {
	data, err := yaml.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling build request for builder container: %w", err)
	}
	f, err := os.CreateTemp("", "buildctl-request-*.yaml")
	if err != nil {
		return "", fmt.Errorf("creating request file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("writing request file: %w", err)
	}
	return f.Name(), nil
}

func streamContainerLogs(ctx context.Context, cli *client.Client, containerID string, log zerolog.Logger) {
	out, err := cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		log.Warn().Err(err).Msg("could not attach to builder container logs")
		return
	}
	defer out.Close()
	buf := make([]byte, 4096)
	for {
		n, readErr := out.Read(buf)
		if n > 0 {
			log.Info().Str("container", containerID[:12]).Msg(string(buf[:n]))
		}
		if readErr != nil {
			return
		}
	}
}

func commitAndPushBuildroot(ctx context.Context, cli *client.Client, containerID, ref string, log zerolog.Logger) error {
	log.Info().Str("ref", ref).Msg("committing buildroot container")
	commit, err := cli.ContainerCommit(ctx, containerID, container.CommitOptions{Reference: ref})
	if err != nil {
		return fmt.Errorf("committing buildroot: %w", err)
	}
	reader, err := cli.ImagePush(ctx, ref, image.PushOptions{})
	if err != nil {
		return fmt.Errorf("pushing buildroot %s (%s): %w", ref, commit.ID, err)
	}
	defer reader.Close()
	buf := make([]byte, 4096)
	for {
		if _, err := reader.Read(buf); err != nil {
			break
		}
	}
	return nil
}
