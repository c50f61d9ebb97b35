// Package workflow owns the canonical build state and drives the four
// phases around a container-engine build call.
package workflow

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencontainer-orchestrator/buildctl/internal/buildrecord"
	"github.com/opencontainer-orchestrator/buildctl/internal/config"
	"github.com/opencontainer-orchestrator/buildctl/internal/imageref"
	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
	"github.com/opencontainer-orchestrator/buildctl/internal/sourcespec"
	"github.com/opencontainer-orchestrator/buildctl/internal/tasker"
)

// Result is the build-result record returned by all three public entry
// forms.
type Result struct {
	BuiltImageID   string
	Success        bool
	PrebuildResults  map[string]any
	PostbuildResults map[string]any // shared by pre-publish and post-build (phase-result aliasing)
	InputResults     map[string]any
}

// Workflow is the mutable singleton per build. It satisfies plugin.Context
// structurally.
type Workflow struct {
	req      *config.BuildRequest
	registry *plugin.Registry
	tasker   tasker.Tasker
	log      zerolog.Logger

	sourceRoot    string
	sourceCleanup func() error
	recipePath    string
	baseImage     string
	imageID       string
	failing       bool

	inputResults     map[string]any
	prebuildResults  map[string]any
	postbuildResults map[string]any // pre-publish results are aliased into this same map

	artifactsDir string
	timing       *buildrecord.Timing
}

// SetArtifactsDir enables build-record and phase-timing persistence: every
// phase's wall-clock duration and the build's terminal status are written
// under dir (build.json, timing.json). Leaving it unset skips persistence
// entirely, matching callers that only want the in-memory Result.
func (w *Workflow) SetArtifactsDir(dir string) {
	w.artifactsDir = dir
}

// New constructs a Workflow ready to Build. The registry is expected to
// already include any extra plugin files named by req.ExtraPluginFiles
// (the caller is responsible for constructing it with those globs, since
// Registry.Load's cache is meant to be reused across builds).
func New(req *config.BuildRequest, reg *plugin.Registry, tsk tasker.Tasker, log zerolog.Logger) *Workflow {
	return &Workflow{
		req:              req,
		registry:         reg,
		tasker:           tsk,
		log:              log,
		inputResults:     map[string]any{},
		prebuildResults:  map[string]any{},
		postbuildResults: map[string]any{},
	}
}

// plugin.Context implementation.
func (w *Workflow) BuiltImageID() string    { return w.imageID }
func (w *Workflow) RecipePath() string      { return w.recipePath }
func (w *Workflow) SourceRoot() string      { return w.sourceRoot }
func (w *Workflow) BaseImageString() string { return w.baseImage }
func (w *Workflow) IsBuildFailing() bool    { return w.failing }

// Build executes the nine-step build sequence: fetch source, resolve and
// pull the base image, run input/pre-build/build/pre-publish/post-build.
func (w *Workflow) Build(ctx context.Context) (result *Result, buildErr error) {
	defer func() {
		if err := w.teardown(); err != nil {
			w.log.Warn().Err(err).Msg("workflow teardown failed")
		}
	}()

	startedAt := time.Now()
	if w.artifactsDir != "" {
		if err := buildrecord.EnsureDir(w.artifactsDir); err != nil {
			return w.failedResult(), fmt.Errorf("preparing artifacts dir: %w", err)
		}
		w.timing = &buildrecord.Timing{}
		defer func() {
			status := buildrecord.StatusCompleted
			if w.failing || buildErr != nil {
				status = buildrecord.StatusFailed
			}
			rec := &buildrecord.Record{
				Status:       status,
				Image:        w.req.Image,
				BuiltImageID: w.imageID,
				StartedAt:    startedAt,
				FinishedAt:   time.Now(),
			}
			if buildErr != nil {
				rec.Error = buildErr.Error()
			}
			if err := buildrecord.Save(w.artifactsDir, rec); err != nil {
				w.log.Warn().Err(err).Msg("saving build record")
			}
			if err := w.timing.Flush(w.artifactsDir); err != nil {
				w.log.Warn().Err(err).Msg("flushing phase timing")
			}
		}()
	}

	if err := w.fetchSource(ctx); err != nil {
		return w.failedResult(), fmt.Errorf("fetching source: %w", err)
	}

	if err := w.parseBaseImage(); err != nil {
		return w.failedResult(), fmt.Errorf("parsing base image: %w", err)
	}

	if !w.req.DontPullBaseImage {
		pullRef := w.baseImage
		if w.req.ParentRegistry != "" {
			if parsed, err := imageref.Parse(w.baseImage); err == nil {
				pullRef = parsed.WithRegistry(w.req.ParentRegistry).String()
			}
		}
		if err := w.tasker.Pull(ctx, pullRef, w.req.ParentRegistryInsecure); err != nil {
			w.failing = true
			return w.failedResult(), fmt.Errorf("pulling base image %s: %w", pullRef, err)
		}
	}

	w.startTiming("input")
	err := w.runInputPhase(ctx)
	w.endTiming("input")
	if err != nil {
		w.failing = true
		w.log.Warn().Err(err).Msg("input phase failed")
		return w.failedResult(), err
	}

	w.startTiming("prebuild")
	err = w.runPhase(ctx, plugin.PhasePreBuild, w.req.Phases.PreBuild, w.prebuildResults)
	w.endTiming("prebuild")
	if err != nil {
		w.failing = true
		w.log.Warn().Err(err).Msg("pre-build phase failed")
		return w.failedResult(), err
	}

	w.startTiming("build")
	imageID, err := w.tasker.Build(ctx, w.sourceRoot, w.recipePath, w.req.Image)
	w.endTiming("build")
	if err != nil {
		w.failing = true
		return w.failedResult(), fmt.Errorf("building image: %w", err)
	}
	w.imageID = imageID

	w.startTiming("prepublish")
	prePublishErr := w.runPhase(ctx, plugin.PhasePrePublish, w.req.Phases.PrePublish, w.postbuildResults)
	w.endTiming("prepublish")
	if prePublishErr != nil {
		w.failing = true
		w.log.Warn().Err(prePublishErr).Msg("pre-publish phase failed, skipping tag/push")
	} else if pushErr := w.tagAndPush(ctx); pushErr != nil {
		w.failing = true
		w.log.Warn().Err(pushErr).Msg("tag/push failed")
	}

	if w.req.ShouldRunPostBuild(w.failing) {
		w.startTiming("postbuild")
		postErr := w.runPhase(ctx, plugin.PhasePostBuild, w.req.Phases.PostBuild, w.postbuildResults)
		w.endTiming("postbuild")
		if postErr != nil {
			w.log.Warn().Err(postErr).Msg("post-build phase failed")
		}
	} else {
		w.log.Debug().Msg("skipping post-build phase: build is failing and run_post_build_on_failure is false")
	}

	return &Result{
		BuiltImageID:     w.imageID,
		Success:          !w.failing,
		PrebuildResults:  w.prebuildResults,
		PostbuildResults: w.postbuildResults,
		InputResults:     w.inputResults,
	}, nil
}

func (w *Workflow) startTiming(phase string) {
	if w.timing != nil {
		w.timing.AddStart(phase)
	}
}

func (w *Workflow) endTiming(phase string) {
	if w.timing != nil {
		w.timing.AddEnd(phase)
	}
}

func (w *Workflow) failedResult() *Result {
	return &Result{
		BuiltImageID:     w.imageID,
		Success:          false,
		PrebuildResults:  w.prebuildResults,
		PostbuildResults: w.postbuildResults,
		InputResults:     w.inputResults,
	}
}

func (w *Workflow) fetchSource(ctx context.Context) error {
	if err := sourcespec.Preflight(w.req.Source.Provider); err != nil {
		return err
	}
	fetcher, err := sourcespec.New(w.req.Source.Provider)
	if err != nil {
		return err
	}
	resolved, err := fetcher.Fetch(ctx, w.req.Source)
	if err != nil {
		return err
	}
	w.sourceRoot = resolved.RootPath
	w.recipePath = resolved.RecipePath
	w.sourceCleanup = resolved.Cleanup
	return nil
}

// teardown releases the resources a build may have acquired: the fetched
// source tree's scratch directory and the tasker's daemon connection. The two
// are independent, so they run concurrently; both are attempted even if one
// fails, matching the bounded fan-out idiom used elsewhere for independent
// cleanup steps.
func (w *Workflow) teardown() error {
	var g errgroup.Group
	g.Go(func() error {
		if w.sourceCleanup == nil {
			return nil
		}
		return w.sourceCleanup()
	})
	g.Go(func() error {
		closer, ok := w.tasker.(interface{ Close() error })
		if !ok {
			return nil
		}
		return closer.Close()
	})
	return g.Wait()
}

// parseBaseImage scans the recipe's first unindented FROM line.
// go-containerregistry parses image references, not Dockerfiles, so this is
// a small stdlib scan rather than a library call.
func (w *Workflow) parseBaseImage() error {
	f, err := os.Open(w.recipePath)
	if err != nil {
		return fmt.Errorf("opening recipe %s: %w", w.recipePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToUpper(line), "FROM ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		w.baseImage = fields[1]
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading recipe %s: %w", w.recipePath, err)
	}
	return fmt.Errorf("no FROM instruction found in %s", w.recipePath)
}

func (w *Workflow) runInputPhase(ctx context.Context) error {
	entries := toPluginEntries(w.req.Phases.Input)
	if len(entries) == 0 {
		return nil
	}
	descriptors := w.registry.Load(plugin.PhaseInput)
	return plugin.RunInput(ctx, descriptors, entries, w.inputResults, w.log)
}

func (w *Workflow) runPhase(ctx context.Context, phase plugin.Phase, entries []config.PluginEntry, results map[string]any) error {
	if len(entries) == 0 {
		return nil
	}
	descriptors := w.registry.Load(phase)
	runner := plugin.NewBuildRunner(phase, descriptors, results, w.tasker, w, w.log)
	return runner.Run(ctx, toPluginEntries(entries))
}

func (w *Workflow) tagAndPush(ctx context.Context) error {
	var lastErr error
	for _, ref := range w.req.TargetRegistries {
		if err := w.tasker.Tag(ctx, w.imageID, ref); err != nil {
			lastErr = fmt.Errorf("tagging %s: %w", ref, err)
			continue
		}
		if err := w.tasker.Push(ctx, ref, w.req.TargetRegistriesInsecure); err != nil {
			lastErr = fmt.Errorf("pushing %s: %w", ref, err)
		}
	}
	return lastErr
}

func toPluginEntries(entries []config.PluginEntry) []plugin.Entry {
	out := make([]plugin.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.ToPluginEntry()
	}
	return out
}
