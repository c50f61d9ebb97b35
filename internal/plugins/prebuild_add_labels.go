package plugins

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
)

func init() {
	plugin.Register(plugin.Descriptor{
		Key:            "add_labels_in_dockerfile",
		Phase:          plugin.PhasePreBuild,
		CanFailDefault: false,
		Build: func(tasker plugin.Tasker, wf plugin.Context, args map[string]any) (plugin.Plugin, error) {
			labels, ok := args["labels"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("add_labels_in_dockerfile: 'labels' arg must be a mapping")
			}
			return &addLabelsPlugin{wf: wf, labels: labels}, nil
		},
	})
}

// addLabelsPlugin appends a LABEL instruction to the recipe before the
// image is built, operating on RecipePath directly rather than holding its
// own copy of the source.
type addLabelsPlugin struct {
	wf     plugin.Context
	labels map[string]any
}

func (p *addLabelsPlugin) Key() string { return "add_labels_in_dockerfile" }

func (p *addLabelsPlugin) Run(ctx context.Context) (any, error) {
	recipe := p.wf.RecipePath()
	f, err := os.OpenFile(recipe, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening recipe %s: %w", recipe, err)
	}
	defer f.Close()

	keys := make([]string, 0, len(p.labels))
	for k := range p.labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	line := "\nLABEL"
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%q", k, fmt.Sprint(p.labels[k]))
	}
	line += "\n"

	if _, err := f.WriteString(line); err != nil {
		return nil, fmt.Errorf("writing labels to %s: %w", recipe, err)
	}
	return keys, nil
}
