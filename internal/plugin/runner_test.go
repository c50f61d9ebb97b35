package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	key    string
	result any
	err    error
}

func (f *fakePlugin) Key() string { return f.key }
func (f *fakePlugin) Run(ctx context.Context) (any, error) {
	return f.result, f.err
}

func newTestRunner(descriptors map[string]Descriptor, results map[string]any) *Runner {
	return &Runner{
		Phase:       PhasePreBuild,
		Descriptors: descriptors,
		Results:     results,
		Log:         zerolog.Nop(),
		NewInstance: func(d Descriptor, args map[string]any) (Plugin, error) {
			return d.Build(nil, nil, args)
		},
	}
}

func buildDescriptor(key string, canFailDefault bool, result any, runErr error) Descriptor {
	return Descriptor{
		Key:            key,
		Phase:          PhasePreBuild,
		CanFailDefault: canFailDefault,
		Build: func(_ Tasker, _ Context, args map[string]any) (Plugin, error) {
			return &fakePlugin{key: key, result: result, err: runErr}, nil
		},
	}
}

// S1: a normal run of two succeeding plugins stores both results keyed by name.
func TestRunner_SuccessStoresResults(t *testing.T) {
	descriptors := map[string]Descriptor{
		"a": buildDescriptor("a", true, "result-a", nil),
		"b": buildDescriptor("b", true, "result-b", nil),
	}
	results := map[string]any{}
	r := newTestRunner(descriptors, results)

	err := r.Run(context.Background(), []Entry{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "result-a", results["a"])
	assert.Equal(t, "result-b", results["b"])
}

// S2: a plugin that raises with can_fail=true (class default) is tolerated;
// the run is not fatal but the failure message is still stored as the result.
func TestRunner_TolerantFailureContinues(t *testing.T) {
	descriptors := map[string]Descriptor{
		"bad":  buildDescriptor("bad", true, nil, errors.New("boom")),
		"good": buildDescriptor("good", true, "ok", nil),
	}
	results := map[string]any{}
	r := newTestRunner(descriptors, results)

	err := r.Run(context.Background(), []Entry{{Name: "bad"}, {Name: "good"}})
	require.NoError(t, err)
	assert.Contains(t, results["bad"], "boom")
	assert.Equal(t, "ok", results["good"])
}

// A plugin that raises with can_fail=false (class default false) makes the
// phase fail, but later entries still run (fatality is accumulated, not an
// early abort).
func TestRunner_FatalFailureStopsPhaseButRunsRemaining(t *testing.T) {
	descriptors := map[string]Descriptor{
		"bad":  buildDescriptor("bad", false, nil, errors.New("boom")),
		"good": buildDescriptor("good", true, "ok", nil),
	}
	results := map[string]any{}
	r := newTestRunner(descriptors, results)

	err := r.Run(context.Background(), []Entry{{Name: "bad"}, {Name: "good"}})
	require.Error(t, err)
	var pfe *PhaseFailedError
	require.ErrorAs(t, err, &pfe)
	assert.Len(t, pfe.Messages, 1)
	assert.Equal(t, "ok", results["good"]) // remaining entries still executed
}

// Per-entry can_fail override takes precedence over the class default.
func TestRunner_EntryOverrideTakesPrecedence(t *testing.T) {
	descriptors := map[string]Descriptor{
		"bad": buildDescriptor("bad", false, nil, errors.New("boom")),
	}
	results := map[string]any{}
	r := newTestRunner(descriptors, results)

	tolerant := true
	err := r.Run(context.Background(), []Entry{{Name: "bad", CanFail: &tolerant}})
	require.NoError(t, err)
	assert.Contains(t, results["bad"], "boom")
}

// S6 / invariant 7: a malformed entry (missing name, bad args, unknown name)
// is skipped, not fatal, and doesn't prevent other entries from running.
func TestRunner_MalformedEntriesAreSkippedNotFatal(t *testing.T) {
	descriptors := map[string]Descriptor{
		"good": buildDescriptor("good", true, "ok", nil),
	}
	results := map[string]any{}
	r := newTestRunner(descriptors, results)

	entries := []Entry{
		{Name: ""},                      // missing name
		{Name: "good", Args: "not-a-map"}, // bad args
		{Name: "missing"},                // unknown plugin
		{Name: "good"},
	}
	err := r.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, "ok", results["good"])
	assert.Len(t, results, 1)
}

func TestResolveCanFail(t *testing.T) {
	yes, no := true, false
	assert.True(t, resolveCanFail(&yes, false))
	assert.False(t, resolveCanFail(&no, true))
	assert.True(t, resolveCanFail(nil, true))
	assert.False(t, resolveCanFail(nil, false))
}

func TestAsArgsMap(t *testing.T) {
	m, err := asArgsMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = asArgsMap(map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, m["x"])

	_, err = asArgsMap("nope")
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
