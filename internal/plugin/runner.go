package plugin

import (
	"context"

	"github.com/rs/zerolog"
)

// InstanceFactory builds one plugin instance for a configured entry. Runner
// is generic over this so BuildRunner and InputRunner can each supply their
// own construction rule (tasker+workflow vs. args-only) while sharing the
// same execution/fatality/result-keying algorithm.
type InstanceFactory func(d Descriptor, args map[string]any) (Plugin, error)

// Runner executes a configured plugin list for one phase against a shared,
// writable result map. Pre-publish and post-build phases are expected to
// pass in the *same* map instance so plugins in one phase can read the
// other's results — aliasing is load-bearing, not an accident.
type Runner struct {
	Phase       Phase
	Descriptors map[string]Descriptor
	Results     map[string]any
	NewInstance InstanceFactory
	Log         zerolog.Logger
}

// Run executes entries in order, skipping malformed entries and unknown
// plugin names, and accumulating can_fail=false failures into a
// PhaseFailedError raised once the whole list has run.
func (r *Runner) Run(ctx context.Context, entries []Entry) error {
	var failed []string

	for _, e := range entries {
		if e.Name == "" {
			r.Log.Error().Msg("invalid plugin request, no 'name' field")
			continue
		}

		args, err := asArgsMap(e.Args)
		if err != nil {
			r.Log.Error().Str("plugin", e.Name).Err(err).Msg("invalid plugin request, 'args' is not a mapping")
			continue
		}

		d, ok := r.Descriptors[e.Name]
		if !ok {
			r.Log.Error().Str("plugin", e.Name).Msg("no such plugin, did you set the correct phase?")
			continue
		}

		canFail := resolveCanFail(e.CanFail, d.CanFailDefault)
		r.Log.Debug().Str("plugin", e.Name).Bool("can_fail", canFail).Msg("resolved fatality")

		instance, err := r.NewInstance(d, args)
		if err != nil {
			r.Log.Error().Str("plugin", e.Name).Err(err).Msg("failed to instantiate plugin")
			continue
		}

		result, err := instance.Run(ctx)
		if err != nil {
			msg := "plugin '" + instance.Key() + "' raised an exception: " + err.Error()
			r.Log.Warn().Str("plugin", instance.Key()).Msg(msg)
			r.Log.Debug().Str("plugin", instance.Key()).Err(err).Msg("plugin failure detail")
			if !canFail {
				failed = append(failed, msg)
			} else {
				r.Log.Info().Str("plugin", instance.Key()).Msg("error is not fatal, continuing")
			}
			result = msg
		}

		r.Results[instance.Key()] = result
	}

	if len(failed) > 0 {
		return &PhaseFailedError{Messages: failed}
	}
	return nil
}

// resolveCanFail applies the precedence: per-entry override, then class
// default. The "otherwise true" fallback is not applied here, since
// Descriptor.CanFailDefault is a plain bool; descriptors built from
// manifests get it when loadManifest resolves an omitted can_fail_default.
func resolveCanFail(override *bool, classDefault bool) bool {
	if override != nil {
		return *override
	}
	return classDefault
}

// asArgsMap normalizes an Entry's untyped Args field into a map, treating a
// nil value as an empty map (args default to {}) and rejecting anything
// that isn't a mapping.
func asArgsMap(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	default:
		return nil, &ConfigError{Reason: "args must be a mapping"}
	}
}
