package patch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const original = "cmake_minimum_required(VERSION 3.10)\nproject(zlib C)\nadd_library(zlib zlib.c)\n"

func TestApplyTraditional(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{
			name: "plain names",
			patch: "--- CMakeLists.txt\n+++ CMakeLists.txt\n" +
				"@@ -1,3 +1,3 @@\n cmake_minimum_required(VERSION 3.10)\n project(zlib C)\n-add_library(zlib zlib.c)\n+add_library(zlib STATIC zlib.c)\n",
		},
		{
			name: "prefixed names",
			patch: "--- a/CMakeLists.txt\n+++ b/CMakeLists.txt\n" +
				"@@ -1,3 +1,3 @@\n cmake_minimum_required(VERSION 3.10)\n project(zlib C)\n-add_library(zlib zlib.c)\n+add_library(zlib STATIC zlib.c)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "CMakeLists.txt"), original)

			err := New(nil).Apply(strings.NewReader(tt.patch), root)
			require.NoError(t, err)
			assert.Contains(t, readFile(t, filepath.Join(root, "CMakeLists.txt")), "add_library(zlib STATIC zlib.c)")
		})
	}
}

func TestApplyGitNewAndDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old.txt"), "bye\n")
	writeFile(t, filepath.Join(root, "src", "keep.c"), "int x;\n")

	p := "diff --git a/src/new.txt b/src/new.txt\n" +
		"new file mode 100644\n" +
		"--- /dev/null\n" +
		"+++ b/src/new.txt\n" +
		"@@ -0,0 +1,2 @@\n+hello\n+world\n" +
		"diff --git a/old.txt b/old.txt\n" +
		"deleted file mode 100644\n" +
		"--- a/old.txt\n" +
		"+++ /dev/null\n" +
		"@@ -1 +0,0 @@\n-bye\n"

	require.NoError(t, New(nil).Apply(strings.NewReader(p), root))
	assert.Equal(t, "hello\nworld\n", readFile(t, filepath.Join(root, "src", "new.txt")))
	assert.NoFileExists(t, filepath.Join(root, "old.txt"))
}

func TestApplyNewFileNames(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		want  string
	}{
		{
			name: "git name kept as written",
			patch: "diff --git a/cmake/config.h.in b/cmake/config.h.in\n" +
				"new file mode 100644\n--- /dev/null\n+++ b/cmake/config.h.in\n" +
				"@@ -0,0 +1 @@\n+#define X 1\n",
			want: filepath.Join("cmake", "config.h.in"),
		},
		{
			name: "git top-level name",
			patch: "diff --git a/NOTES b/NOTES\n" +
				"new file mode 100644\n--- /dev/null\n+++ b/NOTES\n" +
				"@@ -0,0 +1 @@\n+#define X 1\n",
			want: "NOTES",
		},
		{
			name: "traditional prefix stripped",
			patch: "--- /dev/null\n+++ b/include/gen.h\n" +
				"@@ -0,0 +1 @@\n+#define X 1\n",
			want: filepath.Join("include", "gen.h"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "include", "keep.h"), "\n")

			require.NoError(t, New(nil).Apply(strings.NewReader(tt.patch), root))
			assert.Equal(t, "#define X 1\n", readFile(t, filepath.Join(root, tt.want)))
		})
	}
}

func TestApplyErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "CMakeLists.txt"), original)

	t.Run("missing target", func(t *testing.T) {
		p := "--- nothere.txt\n+++ nothere.txt\n@@ -1 +1 @@\n-a\n+b\n"
		err := New(nil).Apply(strings.NewReader(p), root)
		assert.True(t, errors.Is(err, errors.ErrCodeIO))
	})

	t.Run("context mismatch", func(t *testing.T) {
		p := "--- CMakeLists.txt\n+++ CMakeLists.txt\n@@ -1,1 +1,1 @@\n-project(other)\n+project(zlib C)\n"
		err := New(nil).Apply(strings.NewReader(p), root)
		assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
		assert.Equal(t, original, readFile(t, filepath.Join(root, "CMakeLists.txt")))
	})

	t.Run("traversal", func(t *testing.T) {
		p := "--- ../escape.txt\n+++ ../escape.txt\n@@ -1 +1 @@\n-a\n+b\n"
		err := New(nil).Apply(strings.NewReader(p), root)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidPath))
	})

	t.Run("empty", func(t *testing.T) {
		err := New(nil).Apply(strings.NewReader("just some text\n"), root)
		assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	})
}

func TestDiffRoundTrip(t *testing.T) {
	edited := strings.Replace(original, "add_library(zlib zlib.c)", "add_library(zlib SHARED zlib.c)", 1)

	work := t.TempDir()
	writeFile(t, filepath.Join(work, "CMakeLists.src.txt"), original)
	writeFile(t, filepath.Join(work, "CMakeLists.txt"), edited)

	text, err := Diff(work, "CMakeLists.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "--- CMakeLists.txt\n+++ CMakeLists.txt\n"), text)
	assert.Contains(t, text, "+add_library(zlib SHARED zlib.c)\n")

	patches := t.TempDir()
	writeFile(t, filepath.Join(patches, "nested", "CMakeLists.txt"+Ext), text)

	target := t.TempDir()
	writeFile(t, filepath.Join(target, "CMakeLists.txt"), original)

	n, err := New(nil).ApplyDir(patches, target)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, edited, readFile(t, filepath.Join(target, "CMakeLists.txt")))
}

func TestDiffMissingPristine(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "a.txt"), "x\n")
	_, err := Diff(work, "a.txt")
	assert.True(t, errors.Is(err, errors.ErrCodeIO))
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "CMakeLists.src.txt", SourceName("CMakeLists.txt"))
	assert.Equal(t, filepath.Join("lib", "zlib.src.c"), SourceName(filepath.Join("lib", "zlib.c")))
	assert.Equal(t, "Makefile.src", SourceName("Makefile"))
}

func TestFindSorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.patch"), "")
	writeFile(t, filepath.Join(dir, "a", "z.patch"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")

	got, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a", "z.patch"), filepath.Join(dir, "b.patch")}, got)
}
