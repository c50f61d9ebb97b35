package config

import (
	"fmt"
	"strings"
)

// ApplyOverrides applies a flat dotted-path override map onto req. This is a
// distinct mechanism from internal/plugin's runtime placeholder substitution:
// that one replaces fixed BUILT_IMAGE_ID-style tokens inside already-configured
// plugin args at instantiation time; this one lets a caller patch the build
// request itself before the workflow ever starts, keyed by dotted path
// rather than a fixed token vocabulary.
//
// Recognized path shapes:
//   - "key" — overwrite a top-level field of the build request.
//   - "phase.plugin_key.arg_name" — locate the plugin entry named plugin_key
//     within the given phase's list and overwrite args[arg_name].
func ApplyOverrides(req *BuildRequest, overrides map[string]any) error {
	for path, value := range overrides {
		segments := strings.Split(path, ".")
		switch len(segments) {
		case 1:
			if err := setTopLevelField(req, segments[0], value); err != nil {
				return err
			}
		case 3:
			if err := setPluginArg(req, segments[0], segments[1], segments[2], value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("substitution: %q is neither a top-level key nor a phase.plugin_key.arg_name path", path)
		}
	}
	return nil
}

func setTopLevelField(req *BuildRequest, key string, value any) error {
	switch key {
	case "image":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("substitution: %q expects a string value", key)
		}
		req.Image = s
	case "parent_registry":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("substitution: %q expects a string value", key)
		}
		req.ParentRegistry = s
	case "dont_pull_base_image":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("substitution: %q expects a bool value", key)
		}
		req.DontPullBaseImage = b
	case "parent_registry_insecure":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("substitution: %q expects a bool value", key)
		}
		req.ParentRegistryInsecure = b
	case "target_registries_insecure":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("substitution: %q expects a bool value", key)
		}
		req.TargetRegistriesInsecure = b
	case "build_image":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("substitution: %q expects a string value", key)
		}
		req.BuildImage = s
	case "push_buildroot_to":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("substitution: %q expects a string value", key)
		}
		req.PushBuildrootTo = s
	case "run_post_build_on_failure":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("substitution: %q expects a bool value", key)
		}
		req.RunPostBuildOnFailure = &b
	default:
		return fmt.Errorf("substitution: unknown top-level key %q", key)
	}
	return nil
}

func phaseEntries(req *BuildRequest, phase string) (*[]PluginEntry, error) {
	switch phase {
	case "input":
		return &req.Phases.Input, nil
	case "prebuild":
		return &req.Phases.PreBuild, nil
	case "prepublish":
		return &req.Phases.PrePublish, nil
	case "postbuild":
		return &req.Phases.PostBuild, nil
	default:
		return nil, fmt.Errorf("substitution: unknown phase %q", phase)
	}
}

// setPluginArg locates the plugin entry named pluginKey in phase's list and
// overwrites args[argName], creating the args mapping if absent.
func setPluginArg(req *BuildRequest, phase, pluginKey, argName string, value any) error {
	entries, err := phaseEntries(req, phase)
	if err != nil {
		return err
	}

	for i := range *entries {
		e := &(*entries)[i]
		if e.Name != pluginKey {
			continue
		}
		args, ok := e.Args.(map[string]any)
		if !ok {
			args = map[string]any{}
		}
		args[argName] = value
		e.Args = args
		return nil
	}
	return fmt.Errorf("substitution: phase %q has no configured plugin %q", phase, pluginKey)
}
