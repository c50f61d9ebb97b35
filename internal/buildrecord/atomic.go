package buildrecord

import "os"

// writeFileAtomic writes data to path by writing a temp file first and
// renaming it into place, so a crash mid-write never leaves a truncated
// record behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
