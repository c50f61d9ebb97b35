package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
)

const buildEnvVar = "BUILD"

func init() {
	plugin.Register(plugin.Descriptor{
		Key:            "env",
		Phase:          plugin.PhaseInput,
		CanFailDefault: false,
		Input: func(args map[string]any) (plugin.InputPlugin, error) {
			return &envInputPlugin{}, nil
		},
		Probe: func(args map[string]any) (bool, error) {
			return (&envInputPlugin{}).IsUsableHere(), nil
		},
	})
}

// envInputPlugin discovers a build specification from the ambient
// environment rather than caller-supplied args: when the orchestrator
// itself runs inside an already-scheduled build job, the scheduler typically
// exposes the job's own metadata through an environment variable instead of
// requiring it to be passed again on the command line.
type envInputPlugin struct{}

func (p *envInputPlugin) Key() string { return "env" }

func (p *envInputPlugin) IsUsableHere() bool {
	return os.Getenv(buildEnvVar) != ""
}

func (p *envInputPlugin) Run(ctx context.Context) (any, error) {
	raw := os.Getenv(buildEnvVar)
	if raw == "" {
		return nil, fmt.Errorf("%s environment variable not set", buildEnvVar)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", buildEnvVar, err)
	}
	return parsed, nil
}
