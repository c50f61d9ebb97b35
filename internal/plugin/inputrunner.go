package plugin

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

const autoInputName = "auto"

// RunInput executes the input phase's configured plugin list. When the
// first (and normally only) entry's name is the sentinel
// "auto", every loaded input plugin is probed via IsUsableHere and exactly
// one usable plugin is required; the entry is rewritten to name that plugin
// before delegating to the general Runner, and the result is re-keyed from
// the chosen plugin's key back to the literal "auto" so callers can address
// the produced build specification uniformly.
func RunInput(ctx context.Context, descriptors map[string]Descriptor, entries []Entry, results map[string]any, log zerolog.Logger) error {
	entries = append([]Entry(nil), entries...) // never mutate the caller's slice

	isAuto := len(entries) > 0 && entries[0].Name == autoInputName
	var chosen string

	if isAuto {
		var err error
		chosen, err = selectAutoInput(descriptors, log)
		if err != nil {
			return &PhaseFailedError{Messages: []string{err.Error()}}
		}
		log.Debug().Str("chosen", chosen).Msg("using autoselected input plugin")
		entries[0].Name = chosen
	}

	runner := &Runner{
		Phase:       PhaseInput,
		Descriptors: descriptors,
		Results:     results,
		Log:         log,
		NewInstance: func(d Descriptor, args map[string]any) (Plugin, error) {
			if d.Input == nil {
				return nil, fmt.Errorf("plugin %q has no input factory", d.Key)
			}
			return d.Input(args)
		},
	}

	if err := runner.Run(ctx, entries); err != nil {
		return err
	}

	if isAuto {
		if v, ok := results[chosen]; ok {
			delete(results, chosen)
			results[autoInputName] = v
		}
	}
	return nil
}

// selectAutoInput probes every loaded input plugin's IsUsableHere and
// requires exactly one to report true. Descriptors are probed in key order
// for deterministic error messages.
func selectAutoInput(descriptors map[string]Descriptor, log zerolog.Logger) (string, error) {
	keys := make([]string, 0, len(descriptors))
	for k := range descriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var usable []string
	for _, k := range keys {
		d := descriptors[k]
		log.Debug().Str("plugin", k).Msg("checking if plugin is autousable")

		var ok bool
		var err error
		if d.Probe != nil {
			ok, err = d.Probe(map[string]any{})
		} else if d.Input != nil {
			inst, ierr := d.Input(map[string]any{})
			if ierr != nil {
				err = ierr
			} else {
				ok = inst.IsUsableHere()
			}
		}
		if err != nil {
			log.Warn().Str("plugin", k).Err(err).Msg("autousable probe failed")
			continue
		}
		if ok {
			usable = append(usable, k)
		}
	}

	switch len(usable) {
	case 0:
		return "", fmt.Errorf("no autousable input plugin")
	case 1:
		return usable[0], nil
	default:
		return "", fmt.Errorf("more than one usable input plugin: %v", usable)
	}
}
