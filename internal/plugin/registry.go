package plugin

import (
	"fmt"
	"os"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// global holds every built-in plugin descriptor, keyed by phase then key.
// Built-in plugins register themselves here from an init() func in
// internal/plugins — the Go-native analog of "discover every file in the
// built-in plugins directory", since Go cannot runtime-eval a source file
// into a throwaway namespace the way Python's imp.load_source can.
var (
	globalMu  sync.Mutex
	global    = map[Phase]map[string]Descriptor{}
)

// Register adds a built-in plugin descriptor to the global registry. It is
// meant to be called from a package-level init() in a concrete plugin's
// package. Registering two descriptors under the same (phase, key) is
// last-writer-wins, exactly like the runtime classification pass in the
// original plugin.py loader, which overwrote plugin_classes[key] on the
// final matching binding found in dir(f_module).
func Register(d Descriptor) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global[d.Phase] == nil {
		global[d.Phase] = map[string]Descriptor{}
	}
	global[d.Phase][d.Key] = d
}

// manifest is the on-disk shape of an externally supplied plugin file. Go
// has no runtime source eval, so an "extra plugin file" here is a YAML
// manifest describing an
// out-of-tree executable, wired through ProcessPlugin — grounded on
// Container-Maker's pkg/plugin.Manager, which discovers external binaries
// named by a convention and wraps each in a ProcessPlugin.
type manifest struct {
	Key            string `yaml:"key"`
	Phase          string `yaml:"phase"`
	CanFailDefault *bool  `yaml:"can_fail_default"`
	Path           string `yaml:"path"`
	Timeout        int    `yaml:"timeout_seconds"`
}

// Registry discovers and caches plugin descriptors per phase. A Registry is
// cheap to query repeatedly once built; callers are expected to hold onto
// one per workflow run and cache it themselves.
type Registry struct {
	log      zerolog.Logger
	patterns []string // glob patterns matching extra manifest files

	mu     sync.Mutex
	cache  map[Phase]map[string]Descriptor
}

// NewRegistry builds a Registry that will, on first Load of each phase,
// combine the global built-in descriptors with any manifests matched by
// extraManifestGlobs (each evaluated with doublestar so callers can pass a
// directory glob like "plugins.d/*.yaml" as well as explicit file paths).
func NewRegistry(log zerolog.Logger, extraManifestGlobs ...string) *Registry {
	return &Registry{
		log:      log,
		patterns: extraManifestGlobs,
		cache:    map[Phase]map[string]Descriptor{},
	}
}

// Load returns the key->Descriptor map for phase, merging built-ins with
// matched external manifests. Files that fail to parse or evaluate are
// logged and skipped — discovery never fails globally on a bad file.
func (r *Registry) Load(phase Phase) map[string]Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[phase]; ok {
		return cached
	}

	result := map[string]Descriptor{}
	globalMu.Lock()
	for k, d := range global[phase] {
		result[k] = d
	}
	globalMu.Unlock()

	var paths []string
	for _, pattern := range r.patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			r.log.Warn().Err(err).Str("pattern", pattern).Msg("plugin manifest glob is invalid, skipping")
			continue
		}
		paths = append(paths, matches...)
	}

	// Manifests are independent files on disk; loading each is pure I/O plus
	// a small YAML parse, so fan them out instead of reading one at a time
	// (same shape as review/orchestrator.go's errgroup fan-out over
	// independent review units, minus the result-ordering concern since
	// every manifest is keyed and merged independently below).
	descriptors := make([]Descriptor, len(paths))
	loadErrs := make([]error, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			d, err := loadManifest(path)
			descriptors[i] = d
			loadErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, path := range paths {
		if err := loadErrs[i]; err != nil {
			r.log.Warn().Err(err).Str("file", path).Msg("can't load plugin manifest, skipping")
			continue
		}
		d := descriptors[i]
		if d.Phase != phase {
			continue
		}
		if _, exists := result[d.Key]; exists {
			r.log.Warn().Str("key", d.Key).Str("phase", string(phase)).Msg("duplicate plugin key, last writer wins")
		}
		result[d.Key] = d
	}

	r.cache[phase] = result
	return result
}

func loadManifest(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Descriptor{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Key == "" || m.Phase == "" || m.Path == "" {
		return Descriptor{}, fmt.Errorf("manifest missing required key/phase/path")
	}

	phase := Phase(m.Phase)
	pp := newProcessPlugin(m.Key, m.Path, m.Timeout)

	// can_fail_default left unset in the manifest falls back to true, the
	// final "otherwise true" level of the can_fail precedence; resolveCanFail
	// itself only sees the resolved bool.
	canFailDefault := true
	if m.CanFailDefault != nil {
		canFailDefault = *m.CanFailDefault
	}

	return Descriptor{
		Key:            m.Key,
		Phase:          phase,
		CanFailDefault: canFailDefault,
		Build: func(_ Tasker, _ Context, args map[string]any) (Plugin, error) {
			return pp.withArgs(args), nil
		},
		Input: func(args map[string]any) (InputPlugin, error) {
			return pp.withArgs(args), nil
		},
		Probe: func(args map[string]any) (bool, error) {
			return pp.withArgs(args).IsUsableHere(), nil
		},
	}, nil
}
