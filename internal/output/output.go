// Package output prepares the directory archives are extracted into.
package output

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// ErrPrepare wraps every failure to create or clear the output directory.
var ErrPrepare = errors.New("prepare output directory")

// Prepare leaves an empty directory at path. Existing contents are removed
// unconditionally; missing parents are created.
func Prepare(fsys afero.Fs, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrPrepare)
	}

	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrPrepare, path, err)
	}

	if exists {
		if err := fsys.RemoveAll(path); err != nil {
			return fmt.Errorf("%w: clear %s: %w", ErrPrepare, path, err)
		}
		if err := fsys.Mkdir(path, 0o755); err != nil {
			return fmt.Errorf("%w: recreate %s: %w", ErrPrepare, path, err)
		}
		return nil
	}

	if err := fsys.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrPrepare, path, err)
	}
	return nil
}
