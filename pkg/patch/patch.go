// Package patch applies unified diffs to unpacked source trees and
// produces them from edited files.
//
// Patches may be plain unified diffs or git-style diffs. File names are
// tried as written and then with their first path component removed, so
// both "src/file.c" and "a/src/file.c" headers apply against the same root.
package patch

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Ext is the file extension of patch files.
const Ext = ".patch"

// Patcher applies patch files below a root directory.
type Patcher struct {
	logger *log.Logger
}

// New creates a Patcher. A nil logger discards output.
func New(logger *log.Logger) *Patcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Patcher{logger: logger}
}

// Find returns every *.patch file below dir, sorted.
func Find(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), Ext) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "find patches in %s", dir)
	}
	slices.Sort(out)
	return out, nil
}

// ApplyDir applies every patch found below patchDir to root and returns
// how many were applied.
func (p *Patcher) ApplyDir(patchDir, root string) (int, error) {
	files, err := Find(patchDir)
	if err != nil {
		return 0, err
	}
	p.logger.Info("files to patch", "count", len(files))
	for _, f := range files {
		if err := p.ApplyFile(f, root); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

// ApplyFile applies one patch file to root.
func (p *Patcher) ApplyFile(patchFile, root string) error {
	f, err := os.Open(patchFile)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "open patch %s", patchFile)
	}
	defer f.Close()

	p.logger.Info("Patch applying...", "patch", patchFile, "root", root)
	if err := p.Apply(f, root); err != nil {
		return errors.Wrap(errors.GetCode(err), err, "apply %s", filepath.Base(patchFile))
	}
	p.logger.Info("Patch applied.")
	return nil
}

// Apply applies the patch read from r to root.
func (p *Patcher) Apply(r io.Reader, root string) error {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "parse patch")
	}
	if len(files) == 0 {
		return errors.New(errors.ErrCodeConfiguration, "patch contains no file changes")
	}
	for _, file := range files {
		if err := p.applyFile(file, root); err != nil {
			return err
		}
	}
	return nil
}

func (p *Patcher) applyFile(file *gitdiff.File, root string) error {
	locate := func(name string, mustExist bool) (string, error) {
		return locateName(root, name, mustExist, !isGit(file))
	}
	switch {
	case file.IsNew:
		dst, err := locate(file.NewName, false)
		if err != nil {
			return err
		}
		return p.write(file, nil, dst, 0o644)

	case file.IsDelete:
		src, err := locate(file.OldName, true)
		if err != nil {
			return err
		}
		p.logger.Debug("delete", "file", src)
		if err := os.Remove(src); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "delete %s", src)
		}
		return nil

	default:
		src, err := locate(file.OldName, true)
		if err != nil {
			return err
		}
		dst := src
		if file.NewName != file.OldName {
			if dst, err = locate(file.NewName, false); err != nil {
				return err
			}
		}
		info, err := os.Stat(src)
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "stat %s", src)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "read %s", src)
		}
		if err := p.write(file, data, dst, info.Mode().Perm()); err != nil {
			return err
		}
		if dst != src {
			if err := os.Remove(src); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "remove renamed %s", src)
			}
		}
		return nil
	}
}

func (p *Patcher) write(file *gitdiff.File, src []byte, dst string, mode fs.FileMode) error {
	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), file); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "patch %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", filepath.Dir(dst))
	}
	if err := os.WriteFile(dst, out.Bytes(), mode); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", dst)
	}
	p.logger.Debug("patched", "file", dst)
	return nil
}

// isGit reports whether file came from a "diff --git" header. gitdiff has
// already removed the a/ and b/ prefixes from those names.
func isGit(file *gitdiff.File) bool {
	return file.OldMode != 0 || file.NewMode != 0 || file.IsRename || file.IsCopy
}

// locateName maps a patch file name to a path under root. Git names are
// used as written. Traditional names are also tried with their first
// component stripped: with mustExist the first existing file wins,
// otherwise the stripped name is preferred when its parent directory
// exists.
func locateName(root, name string, mustExist, strip bool) (string, error) {
	names := []string{name}
	if strip {
		names = append(names, stripFirst(name))
	}
	var candidates []string
	for _, n := range names {
		if n == "" || slices.Contains(candidates, n) {
			continue
		}
		if err := errors.ValidatePath(n); err != nil {
			return "", err
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return "", errors.New(errors.ErrCodeInvalidPath, "patch names no file")
	}

	if mustExist {
		for _, n := range candidates {
			p := filepath.Join(root, filepath.FromSlash(n))
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, nil
			}
		}
		return "", errors.New(errors.ErrCodeIO, "patch target %s not found under %s", name, root)
	}

	for i := len(candidates) - 1; i >= 0; i-- {
		p := filepath.Join(root, filepath.FromSlash(candidates[i]))
		if info, err := os.Stat(filepath.Dir(p)); err == nil && info.IsDir() {
			return p, nil
		}
	}
	return filepath.Join(root, filepath.FromSlash(candidates[0])), nil
}

func stripFirst(name string) string {
	if _, rest, ok := strings.Cut(name, "/"); ok {
		return rest
	}
	return ""
}
