// Package config loads and validates a BuildRequest: the orchestrator's
// top-level public input.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
	"github.com/opencontainer-orchestrator/buildctl/internal/sourcespec"
)

// PluginEntry mirrors plugin.Entry's on-disk shape: {name, args?, can_fail?}.
// It is unmarshaled separately from plugin.Entry so the plugin package
// carries no yaml tags of its own.
type PluginEntry struct {
	Name    string `yaml:"name"`
	Args    any    `yaml:"args"`
	CanFail *bool  `yaml:"can_fail"`
}

// ToPluginEntry converts to the runtime type the plugin package consumes.
func (p PluginEntry) ToPluginEntry() plugin.Entry {
	return plugin.Entry{Name: p.Name, Args: p.Args, CanFail: p.CanFail}
}

// Phases holds the four ordered plugin lists, one per phase classification.
type Phases struct {
	Input      []PluginEntry `yaml:"input"`
	PreBuild   []PluginEntry `yaml:"prebuild"`
	PrePublish []PluginEntry `yaml:"prepublish"`
	PostBuild  []PluginEntry `yaml:"postbuild"`
}

// BuildRequest is the top-level input shared by all three public entry
// forms: in-process, host-engine, and privileged-container. BuildImage and
// PushBuildrootTo are consumed only by the latter two.
type BuildRequest struct {
	Source sourcespec.Spec `yaml:"source"`
	Image  string          `yaml:"image"`

	ParentRegistry           string   `yaml:"parent_registry"`
	TargetRegistries         []string `yaml:"target_registries"`
	ParentRegistryInsecure   bool     `yaml:"parent_registry_insecure"`
	TargetRegistriesInsecure bool     `yaml:"target_registries_insecure"`
	DontPullBaseImage        bool     `yaml:"dont_pull_base_image"`

	Phases Phases `yaml:"phases"`

	ExtraPluginFiles []string `yaml:"extra_plugin_files"`

	BuildImage      string `yaml:"build_image,omitempty"`
	PushBuildrootTo string `yaml:"push_buildroot_to,omitempty"`

	// RunPostBuildOnFailure controls whether the post-build phase still runs
	// when an earlier phase has already marked the build failing. Nil means
	// the default (true), matching a pointer-to-bool override following the
	// same "unset means default" shape as PluginEntry.CanFail.
	RunPostBuildOnFailure *bool `yaml:"run_post_build_on_failure,omitempty"`
}

// ShouldRunPostBuild reports whether the post-build phase should run given
// the current build-failing state: true unless the caller explicitly set
// run_post_build_on_failure to false and the build is currently failing.
func (r *BuildRequest) ShouldRunPostBuild(failing bool) bool {
	if !failing {
		return true
	}
	return r.RunPostBuildOnFailure == nil || *r.RunPostBuildOnFailure
}

// Load reads a YAML build request file and returns a validated
// BuildRequest: read file, unmarshal, Validate, return.
func Load(path string) (*BuildRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build request %q: %w", path, err)
	}
	var req BuildRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing build request %q: %w", path, err)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
