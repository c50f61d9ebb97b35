package plugins

import (
	"context"
	"fmt"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
)

func init() {
	plugin.Register(plugin.Descriptor{
		Key:            "verify_required_labels",
		Phase:          plugin.PhasePrePublish,
		CanFailDefault: false,
		Build: func(tasker plugin.Tasker, wf plugin.Context, args map[string]any) (plugin.Plugin, error) {
			required, ok := args["required"].([]any)
			if !ok {
				return nil, fmt.Errorf("verify_required_labels: 'required' arg must be a list")
			}
			names := make([]string, len(required))
			for i, r := range required {
				s, ok := r.(string)
				if !ok {
					return nil, fmt.Errorf("verify_required_labels: 'required[%d]' must be a string", i)
				}
				names[i] = s
			}
			return &verifyLabelsPlugin{tasker: tasker, wf: wf, required: names}, nil
		},
	})
}

// verifyLabelsPlugin inspects the image the tasker just built and rejects
// the publish step if a required label is missing — a pre-publish gate that
// runs after the image exists but before it is pushed anywhere.
type verifyLabelsPlugin struct {
	tasker   plugin.Tasker
	wf       plugin.Context
	required []string
}

func (p *verifyLabelsPlugin) Key() string { return "verify_required_labels" }

func (p *verifyLabelsPlugin) Run(ctx context.Context) (any, error) {
	meta, err := p.tasker.Inspect(ctx, p.wf.BuiltImageID())
	if err != nil {
		return nil, fmt.Errorf("inspecting built image: %w", err)
	}

	config, _ := meta["Config"].(map[string]any)
	labels, _ := config["Labels"].(map[string]any)

	var missing []string
	for _, name := range p.required {
		if _, ok := labels[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required labels: %v", missing)
	}
	return p.required, nil
}
