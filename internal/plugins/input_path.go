package plugins

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
)

const pathInputEnv = "BUILDCTL_INPUT_PATH"

func init() {
	plugin.Register(plugin.Descriptor{
		Key:            "path",
		Phase:          plugin.PhaseInput,
		CanFailDefault: false,
		Input: func(args map[string]any) (plugin.InputPlugin, error) {
			return newPathInputPlugin(args), nil
		},
		Probe: func(args map[string]any) (bool, error) {
			return newPathInputPlugin(args).IsUsableHere(), nil
		},
	})
}

// pathInputPlugin reads a YAML build-request override document from a
// caller-named file (args["path"], falling back to $BUILDCTL_INPUT_PATH):
// a way to supply build configuration as a file alongside the minimal CLI
// invocation instead of inline flags.
type pathInputPlugin struct {
	path string
}

func newPathInputPlugin(args map[string]any) *pathInputPlugin {
	p := &pathInputPlugin{}
	if v, ok := args["path"].(string); ok {
		p.path = v
	} else if v := os.Getenv(pathInputEnv); v != "" {
		p.path = v
	}
	return p
}

func (p *pathInputPlugin) Key() string { return "path" }

func (p *pathInputPlugin) IsUsableHere() bool {
	if p.path == "" {
		return false
	}
	_, err := os.Stat(p.path)
	return err == nil
}

func (p *pathInputPlugin) Run(ctx context.Context) (any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}
