// Package plugin implements the plugin pipeline engine: the registry and
// loader, the general and specialized runners, and runtime placeholder
// substitution for build-phase plugins.
package plugin

import (
	"context"
	"fmt"
)

// Phase identifies one of the four ordered plugin stages.
type Phase string

const (
	PhaseInput       Phase = "input"
	PhasePreBuild    Phase = "pre_build"
	PhasePrePublish  Phase = "pre_publish"
	PhasePostBuild   Phase = "post_build"
)

// Context is the narrow view of workflow state a build-phase plugin is
// allowed to read when instantiated. It is satisfied by *workflow.Workflow;
// defined here (rather than imported from the workflow package) to avoid an
// import cycle between plugin and workflow.
type Context interface {
	BuiltImageID() string
	RecipePath() string
	SourceRoot() string
	BaseImageString() string
	IsBuildFailing() bool
}

// Tasker is the narrow tasker surface build-phase plugins receive. Defined
// here, mirrored by tasker.Tasker, for the same import-cycle reason as
// Context.
type Tasker interface {
	Pull(ctx context.Context, ref string, insecure bool) error
	Build(ctx context.Context, contextDir, recipePath, tag string) (string, error)
	Tag(ctx context.Context, imageID, ref string) error
	Push(ctx context.Context, ref string, insecure bool) error
	Commit(ctx context.Context, containerID, ref string) (string, error)
	Inspect(ctx context.Context, ref string) (map[string]any, error)
	Remove(ctx context.Context, ref string) error
}

// Plugin is the abstract plugin interface: every plugin, regardless of
// phase, exposes a unique Key and a Run entry point. Run returning an error
// indicates failure; its return value is stored as the phase result under
// Key.
type Plugin interface {
	Key() string
	Run(ctx context.Context) (any, error)
}

// InputPlugin is the phase-specialized interface for input plugins. Unlike
// build-phase plugins, input plugins are constructed from arguments alone —
// no tasker, no workflow — and must additionally declare whether they are
// usable without further user input for "auto" selection.
type InputPlugin interface {
	Plugin
	IsUsableHere() bool
}

// BuildFactory builds one plugin instance from raw configuration arguments.
// Two factory shapes exist: BuildFactory (build-phase plugins,
// tasker+workflow) and InputFactory (input plugins, args only).
type BuildFactory func(tasker Tasker, wf Context, args map[string]any) (Plugin, error)

// InputFactory builds an input plugin instance from raw arguments, and
// additionally exposes a class-level usability probe used by "auto".
type InputFactory func(args map[string]any) (InputPlugin, error)

// Descriptor is a loaded plugin's registry entry.
type Descriptor struct {
	Key            string
	Phase          Phase
	CanFailDefault bool
	Build          BuildFactory // set for build-phase descriptors
	Input          InputFactory // set for input descriptors
	// Probe reports is_usable_here() for an input plugin without fully
	// instantiating and running it, used by auto-selection.
	Probe func(args map[string]any) (bool, error)
}

// Entry is one configured plugin invocation: {name, args?, can_fail?}. Args
// is untyped because it is read straight off a YAML node: a malformed config
// might supply a scalar or sequence where a mapping is required, and the
// runner must detect that and skip the entry rather than panic on a failed
// type assertion.
type Entry struct {
	Name    string
	Args    any
	CanFail *bool // nil means "use class default"
}

// ConfigError reports a malformed plugin config entry. It is never fatal by
// itself: the runner logs it and skips the entry.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

// PluginNotFoundError reports a configured plugin name with no loaded
// plugin of that key in the phase. Also never fatal by itself.
type PluginNotFoundError struct {
	Name string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("no such plugin: %q", e.Name)
}

// PhaseFailedError is raised at phase end when the accumulated failure
// buffer (can_fail=false plugins that raised) is non-empty.
type PhaseFailedError struct {
	Messages []string
}

func (e *PhaseFailedError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}
	return fmt.Sprintf("multiple plugins raised an exception: %v", e.Messages)
}
