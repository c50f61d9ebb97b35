package config

import (
	"strings"
	"testing"

	"github.com/opencontainer-orchestrator/buildctl/internal/sourcespec"
)

func minimalRequest() *BuildRequest {
	return &BuildRequest{
		Source: sourcespec.Spec{Provider: "git", URI: "https://example.com/repo.git"},
		Image:  "registry.example.com/app:latest",
	}
}

func TestValidate_SourceProviderRequired(t *testing.T) {
	req := minimalRequest()
	req.Source.Provider = ""
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "source.provider' is required") {
		t.Fatalf("expected provider required error, got %v", err)
	}
}

func TestValidate_UnknownProviderRejected(t *testing.T) {
	req := minimalRequest()
	req.Source.Provider = "svn"
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "not one of git, path, local") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate_SourceURIRequired(t *testing.T) {
	req := minimalRequest()
	req.Source.URI = ""
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "'source.uri' is required") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate_ImageRequired(t *testing.T) {
	req := minimalRequest()
	req.Image = ""
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "'image' is required") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate_InsecureFlagWithoutRegistryIsError(t *testing.T) {
	req := minimalRequest()
	req.ParentRegistryInsecure = true
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "parent_registry_insecure") {
		t.Fatalf("got %v", err)
	}

	req = minimalRequest()
	req.TargetRegistriesInsecure = true
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "target_registries_insecure") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate_PluginEntryMissingNameIsError(t *testing.T) {
	req := minimalRequest()
	req.Phases.PreBuild = []PluginEntry{{Name: ""}}
	if err := Validate(req); err == nil || !strings.Contains(err.Error(), "phases.prebuild[0]") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate_ValidRequestPasses(t *testing.T) {
	req := minimalRequest()
	req.Phases.Input = []PluginEntry{{Name: "auto"}}
	req.Phases.PreBuild = []PluginEntry{{Name: "do-something"}}
	if err := Validate(req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestShouldRunPostBuild_DefaultsToTrueWhenFailing(t *testing.T) {
	req := minimalRequest()
	if !req.ShouldRunPostBuild(true) {
		t.Fatal("expected post-build to run by default on a failing build")
	}
}

func TestShouldRunPostBuild_FalseSkipsOnlyWhenFailing(t *testing.T) {
	req := minimalRequest()
	no := false
	req.RunPostBuildOnFailure = &no

	if req.ShouldRunPostBuild(true) {
		t.Fatal("expected post-build to be skipped on a failing build")
	}
	if !req.ShouldRunPostBuild(false) {
		t.Fatal("a successful build must always run post-build regardless of the override")
	}
}
