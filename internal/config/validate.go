package config

import "fmt"

var validProviders = map[string]bool{
	"git":   true,
	"path":  true,
	"local": true,
}

// Validate checks a BuildRequest for errors: one pass over required fields
// and cross-references, error on the first problem found.
func Validate(req *BuildRequest) error {
	if req.Source.Provider == "" {
		return fmtErr("'source.provider' is required")
	}
	if !validProviders[req.Source.Provider] {
		return fmtErr("source.provider %q is not one of git, path, local", req.Source.Provider)
	}
	if req.Source.URI == "" {
		return fmtErr("'source.uri' is required")
	}
	if req.Image == "" {
		return fmtErr("'image' is required")
	}

	if req.ParentRegistryInsecure && req.ParentRegistry == "" {
		return fmtErr("'parent_registry_insecure' set without 'parent_registry'")
	}
	if req.TargetRegistriesInsecure && len(req.TargetRegistries) == 0 {
		return fmtErr("'target_registries_insecure' set without 'target_registries'")
	}

	if err := validateEntries("input", req.Phases.Input); err != nil {
		return err
	}
	if err := validateEntries("prebuild", req.Phases.PreBuild); err != nil {
		return err
	}
	if err := validateEntries("prepublish", req.Phases.PrePublish); err != nil {
		return err
	}
	if err := validateEntries("postbuild", req.Phases.PostBuild); err != nil {
		return err
	}

	return nil
}

// validateEntries rejects malformed structure the config loader can catch
// ahead of time (missing name); a name with no matching loaded plugin is a
// runtime concern handled by plugin.Runner as a non-fatal per-entry skip,
// not a load-time error.
func validateEntries(phase string, entries []PluginEntry) error {
	for i, e := range entries {
		if e.Name == "" {
			return fmtErr("phases.%s[%d]: 'name' is required", phase, i)
		}
	}
	return nil
}

func fmtErr(format string, args ...any) error {
	return fmt.Errorf("config: "+format, args...)
}
