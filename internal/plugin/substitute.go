package plugin

// substitutionContext is the string->string map of live workflow values
// produced fresh at each plugin instantiation. Keys are a fixed token
// vocabulary (BUILT_IMAGE_ID and friends, below).
type substitutionContext map[string]string

const (
	tokenBuiltImageID       = "BUILT_IMAGE_ID"
	tokenBuildDockerfilePath = "BUILD_DOCKERFILE_PATH"
	tokenBuildSourcePath     = "BUILD_SOURCE_PATH"
	tokenBaseImage           = "BASE_IMAGE"
)

func buildSubstitutionContext(wf Context) substitutionContext {
	return substitutionContext{
		tokenBuiltImageID:        wf.BuiltImageID(),
		tokenBuildDockerfilePath: wf.RecipePath(),
		tokenBuildSourcePath:     wf.SourceRoot(),
		tokenBaseImage:           wf.BaseImageString(),
	}
}

// substitute walks args (nested maps and slices allowed) and replaces any
// string *value* that exactly matches a recognized token with its current
// workflow value. It is a pure function: the returned value shares no
// mutable structure with the input, so the original configured args are
// guaranteed untouched no matter what the caller does afterward.
//
// Substitution is value-only (never applied to map keys) and full-match (a
// token embedded as a substring, e.g. "BASE_IMAGE_extra", is left alone);
// non-string scalars and mapping keys are never candidates.
func substitute(v any, ctx substitutionContext) any {
	switch val := v.(type) {
	case string:
		if replacement, ok := ctx[val]; ok {
			return replacement
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = substitute(elem, ctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = substitute(elem, ctx)
		}
		return out
	default:
		return val
	}
}
