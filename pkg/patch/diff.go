package patch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// SourceName returns the pristine copy name for an edited file:
// "CMakeLists.txt" becomes "CMakeLists.src.txt".
func SourceName(file string) string {
	ext := filepath.Ext(file)
	return strings.TrimSuffix(file, ext) + ".src" + ext
}

// Diff returns a unified diff from the pristine copy of file (see
// [SourceName]) to file itself. Both are read relative to root, and the
// diff headers name file as given so the patch applies against root.
func Diff(root, file string) (string, error) {
	from, err := os.ReadFile(filepath.Join(root, SourceName(file)))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "read pristine copy of %s", file)
	}
	to, err := os.ReadFile(filepath.Join(root, file))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "read %s", file)
	}

	name := filepath.ToSlash(file)
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(string(from)),
		B:        splitLines(string(to)),
		FromFile: name,
		ToFile:   name,
		Context:  3,
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "diff %s", file)
	}
	return text, nil
}

// splitLines splits s after each newline. A missing final newline is
// supplied so every line is terminated.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
