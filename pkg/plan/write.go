package plan

import (
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/multierr"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// File is one output of a configure run.
type File struct {
	Path string
	Data []byte
}

// WriteAll writes every file atomically as a group: each is first written
// to a temporary sibling, and only when all temporaries exist are they
// renamed into place. A failure before the rename step leaves every
// destination untouched.
func WriteAll(files ...File) (err error) {
	type staged struct{ tmp, dst string }
	var done []staged
	defer func() {
		if err == nil {
			return
		}
		for _, s := range done {
			err = multierr.Append(err, removeIfExists(s.tmp))
		}
	}()

	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return errors.Wrap(errors.ErrCodeIO, mkErr, "create %s", dir)
		}
		tmp, tmpErr := writeTemp(dir, filepath.Base(f.Path), f.Data)
		if tmpErr != nil {
			return tmpErr
		}
		done = append(done, staged{tmp: tmp, dst: f.Path})
	}

	for i, s := range done {
		if rnErr := os.Rename(s.tmp, s.dst); rnErr != nil {
			done = slices.Delete(done, 0, i)
			return errors.Wrap(errors.ErrCodeIO, rnErr, "rename %s", s.dst)
		}
	}
	return nil
}

func writeTemp(dir, base string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "create temp for %s", base)
	}
	name := f.Name()
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(name, 0o644)
	}
	if werr != nil {
		_ = os.Remove(name)
		return "", errors.Wrap(errors.ErrCodeIO, werr, "write %s", base)
	}
	return name, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
