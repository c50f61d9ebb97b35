package plugin

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInputPlugin struct {
	key     string
	usable  bool
	result  any
}

func (f *fakeInputPlugin) Key() string                    { return f.key }
func (f *fakeInputPlugin) Run(ctx context.Context) (any, error) { return f.result, nil }
func (f *fakeInputPlugin) IsUsableHere() bool              { return f.usable }

func inputDescriptor(key string, usable bool, result any) Descriptor {
	return Descriptor{
		Key:   key,
		Phase: PhaseInput,
		Input: func(args map[string]any) (InputPlugin, error) {
			return &fakeInputPlugin{key: key, usable: usable, result: result}, nil
		},
		Probe: func(args map[string]any) (bool, error) {
			return usable, nil
		},
	}
}

// S4: exactly one usable input plugin is selected, the entry is rewritten to
// its key, and the result is re-keyed to the literal "auto".
func TestRunInput_AutoSelectsSingleUsablePlugin(t *testing.T) {
	descriptors := map[string]Descriptor{
		"git":   inputDescriptor("git", true, "git-spec"),
		"local": inputDescriptor("local", false, "local-spec"),
	}
	results := map[string]any{}

	err := RunInput(context.Background(), descriptors, []Entry{{Name: "auto"}}, results, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "git-spec", results["auto"])
	assert.NotContains(t, results, "git")
}

// S5: zero usable input plugins is a fatal phase error.
func TestRunInput_NoUsablePluginIsFatal(t *testing.T) {
	descriptors := map[string]Descriptor{
		"git":   inputDescriptor("git", false, "git-spec"),
		"local": inputDescriptor("local", false, "local-spec"),
	}
	results := map[string]any{}

	err := RunInput(context.Background(), descriptors, []Entry{{Name: "auto"}}, results, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no autousable input plugin")
}

// S5: two or more usable input plugins is also a fatal phase error.
func TestRunInput_MultipleUsablePluginsIsFatal(t *testing.T) {
	descriptors := map[string]Descriptor{
		"git":   inputDescriptor("git", true, "git-spec"),
		"local": inputDescriptor("local", true, "local-spec"),
	}
	results := map[string]any{}

	err := RunInput(context.Background(), descriptors, []Entry{{Name: "auto"}}, results, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one usable")
}

// A non-"auto" explicit name bypasses the probing step entirely.
func TestRunInput_ExplicitNameSkipsAutoselection(t *testing.T) {
	descriptors := map[string]Descriptor{
		"git": inputDescriptor("git", false, "git-spec"),
	}
	results := map[string]any{}

	err := RunInput(context.Background(), descriptors, []Entry{{Name: "git"}}, results, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "git-spec", results["git"])
	assert.NotContains(t, results, "auto")
}
