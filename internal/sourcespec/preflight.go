package sourcespec

import (
	"fmt"
	"os/exec"
)

// Preflight checks that the binaries a given provider needs are present on
// PATH, keyed on source provider.
func Preflight(provider string) error {
	var needed string
	switch provider {
	case "git":
		needed = "git"
	case "path", "local":
		return nil
	default:
		return &ErrUnknownProvider{Provider: provider}
	}

	if _, err := exec.LookPath(needed); err != nil {
		return fmt.Errorf("required binary %q not found in PATH", needed)
	}
	return nil
}
