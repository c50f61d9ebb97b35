package plugin

import (
	"fmt"

	"github.com/rs/zerolog"
)

// NewBuildRunner builds a Runner configured for a build-phase (pre-build,
// pre-publish, post-build) plugin list: each configured entry's args are
// run through runtime placeholder substitution before the plugin is
// instantiated with (tasker, workflow, translated_args).
func NewBuildRunner(phase Phase, descriptors map[string]Descriptor, results map[string]any, tasker Tasker, wf Context, log zerolog.Logger) *Runner {
	return &Runner{
		Phase:       phase,
		Descriptors: descriptors,
		Results:     results,
		Log:         log,
		NewInstance: func(d Descriptor, args map[string]any) (Plugin, error) {
			if d.Build == nil {
				return nil, fmt.Errorf("plugin %q has no build factory for phase %q", d.Key, phase)
			}
			ctx := buildSubstitutionContext(wf)
			translated, ok := substitute(args, ctx).(map[string]any)
			if !ok {
				// args was already validated as a map by asArgsMap; substitute
				// on a map always returns a map.
				translated = map[string]any{}
			}
			log.Info().Str("plugin", d.Key).Interface("args", translated).Msg("running plugin instance")
			return d.Build(tasker, wf, translated)
		},
	}
}
