package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	cli "github.com/urfave/cli/v3"

	"github.com/opencontainer-orchestrator/buildctl/internal/config"
	"github.com/opencontainer-orchestrator/buildctl/internal/dispatch"
	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
	"github.com/opencontainer-orchestrator/buildctl/internal/tasker"
	"github.com/opencontainer-orchestrator/buildctl/internal/workflow"
)

func main() {
	app := &cli.Command{
		Name:        "buildctl",
		Usage:       "Container image build orchestrator",
		Description: "Drives a plugin pipeline through input/prebuild/prepublish/postbuild phases around a container engine build.",
		Commands: []*cli.Command{
			buildCmd(),
			doctorCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("buildctl failed")
		os.Exit(1)
	}
}

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Run a build from a build request file",
		ArgsUsage: "<request.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the build request YAML (overrides the positional argument)"},
			&cli.StringFlag{Name: "env", Value: "in-process", Usage: "execution environment: in-process, host-engine, privileged"},
			&cli.StringFlag{Name: "builder-image", Usage: "image to launch for host-engine/privileged execution"},
			&cli.StringFlag{Name: "docker-host", Usage: "daemon socket for in-process execution (defaults to DOCKER_HOST)"},
			&cli.StringFlag{Name: "artifacts-dir", Usage: "directory to persist build.json/timing.json into"},
			&cli.StringSliceFlag{Name: "extra-plugin-file", Usage: "glob of YAML manifests describing out-of-tree plugins"},
			&cli.StringSliceFlag{Name: "set", Usage: "dotted-path override, e.g. image=foo:1 or postbuild.cleanup_build_jobs.component=app"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger(cmd.Bool("verbose"))

			env := dispatch.Env(cmd.String("env"))
			if err := dispatch.Preflight(env); err != nil {
				return err
			}

			path := cmd.String("config")
			if path == "" {
				path = cmd.Args().First()
			}
			if path == "" {
				return fmt.Errorf("a build request path is required, via <request.yaml> or --config")
			}

			req, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := applyOverrides(req, cmd.StringSlice("set")); err != nil {
				return err
			}

			result, err := runBuild(ctx, env, req, cmd, logger)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("build did not complete successfully")
			}
			return nil
		},
	}
}

func runBuild(ctx context.Context, env dispatch.Env, req *config.BuildRequest, cmd *cli.Command, logger zerolog.Logger) (*workflow.Result, error) {
	switch env {
	case dispatch.EnvInProcess:
		reg := plugin.NewRegistry(logger, append(cmd.StringSlice("extra-plugin-file"), req.ExtraPluginFiles...)...)
		tsk, err := tasker.NewDockerTasker(cmd.String("docker-host"), logger)
		if err != nil {
			return nil, err
		}
		return dispatch.BuildInProcess(ctx, req, reg, tsk, cmd.String("artifacts-dir"), logger)

	case dispatch.EnvHostEngine:
		spec := dispatch.BuilderSpec{BuilderImage: cmd.String("builder-image"), PushBuildrootTo: req.PushBuildrootTo}
		return dispatch.BuildUsingHostEngine(ctx, req, spec, logger)

	case dispatch.EnvPrivileged:
		spec := dispatch.BuilderSpec{BuilderImage: cmd.String("builder-image"), PushBuildrootTo: req.PushBuildrootTo}
		return dispatch.BuildInPrivilegedContainer(ctx, req, spec, logger)

	default:
		return nil, fmt.Errorf("unknown --env %q", env)
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check that the binaries a build needs are reachable",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Value: "in-process", Usage: "execution environment to check"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env := dispatch.Env(cmd.String("env"))
			if err := dispatch.Preflight(env); err != nil {
				fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
				return err
			}
			fmt.Printf("OK: %s execution environment is ready\n", env)
			return nil
		},
	}
}

func applyOverrides(req *config.BuildRequest, sets []string) error {
	overrides := map[string]any{}
	for _, s := range sets {
		path, raw, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("--set %q must be of the form path=value", s)
		}
		overrides[path] = parseOverrideValue(raw)
	}
	if len(overrides) == 0 {
		return nil
	}
	return config.ApplyOverrides(req, overrides)
}

// parseOverrideValue lets --set target the bool top-level fields
// (dont_pull_base_image, *_insecure, run_post_build_on_failure) without a
// second flag syntax: "true"/"false" become a bool, everything else stays
// the literal string --set always carries on the command line.
func parseOverrideValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	default:
		return raw
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}
