package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	r := NoopResolveHooks{}
	r.OnResolveStart(ctx, []string{"madler.zlib"})
	r.OnResolveComplete(ctx, 3, time.Second, nil)

	b := NoopBuildHooks{}
	b.OnBuildStart(ctx, "madler.zlib", "abc")
	b.OnBuildComplete(ctx, "madler.zlib", "abc", true, time.Second, nil)

	d := NoopDownloadHooks{}
	d.OnDownloadStart(ctx, "https://example.com/a.zip")
	d.OnDownloadComplete(ctx, "https://example.com/a.zip", 1024, false, time.Second, nil)
}

func TestWithDefaults(t *testing.T) {
	custom := &testBuildHooks{}
	h := Hooks{Build: custom}.WithDefaults()

	if _, ok := h.Resolve.(NoopResolveHooks); !ok {
		t.Error("Resolve should default to NoopResolveHooks")
	}
	if h.Build != custom {
		t.Error("WithDefaults should keep custom hooks")
	}
	if _, ok := h.Download.(NoopDownloadHooks); !ok {
		t.Error("Download should default to NoopDownloadHooks")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	h := NewLogHooks(l)

	h.Build.OnBuildComplete(context.Background(), "madler.zlib", "0123456789abcdef", true, time.Second, nil)
	h.Download.OnDownloadComplete(context.Background(), "https://x/a.zip", 10, false, time.Second, errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"build complete", "madler.zlib", "0123456789ab", "download complete", "boom"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if bytes.Contains([]byte(out), []byte("0123456789abcdef")) {
		t.Error("hash should be shortened")
	}
}

type testBuildHooks struct {
	NoopBuildHooks
	started int
}

func (h *testBuildHooks) OnBuildStart(context.Context, string, string) { h.started++ }
