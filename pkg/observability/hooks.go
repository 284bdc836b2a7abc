// Package observability provides hooks for instrumenting resolution,
// builds and downloads.
//
// Hooks are plain interfaces with no-op defaults. A [Hooks] value is built
// once per session and handed to the components that emit events; there
// is no process-wide registry.
//
//	hooks := observability.Hooks{Build: myBuildHooks}.WithDefaults()
//	sched := scheduler.New(..., scheduler.WithHooks(hooks.Build))
package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events from the configure phase.
type ResolveHooks interface {
	OnResolveStart(ctx context.Context, roots []string)
	OnResolveComplete(ctx context.Context, instances int, duration time.Duration, err error)
}

// =============================================================================
// Build Hooks
// =============================================================================

// BuildHooks receives events from the build phase.
type BuildHooks interface {
	// OnBuildStart is called before an instance is checked against the cache.
	OnBuildStart(ctx context.Context, library, hash string)
	// OnBuildComplete reports whether the install tree was reused.
	OnBuildComplete(ctx context.Context, library, hash string, cached bool, duration time.Duration, err error)
}

// =============================================================================
// Download Hooks
// =============================================================================

// DownloadHooks receives events from the blob cache.
type DownloadHooks interface {
	OnDownloadStart(ctx context.Context, url string)
	OnDownloadComplete(ctx context.Context, url string, bytes int64, cached bool, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolveStart(context.Context, []string)                     {}
func (NoopResolveHooks) OnResolveComplete(context.Context, int, time.Duration, error) {}

// NoopBuildHooks is a no-op implementation of BuildHooks.
type NoopBuildHooks struct{}

func (NoopBuildHooks) OnBuildStart(context.Context, string, string) {}
func (NoopBuildHooks) OnBuildComplete(context.Context, string, string, bool, time.Duration, error) {
}

// NoopDownloadHooks is a no-op implementation of DownloadHooks.
type NoopDownloadHooks struct{}

func (NoopDownloadHooks) OnDownloadStart(context.Context, string) {}
func (NoopDownloadHooks) OnDownloadComplete(context.Context, string, int64, bool, time.Duration, error) {
}

// =============================================================================
// Hook Set
// =============================================================================

// Hooks bundles one implementation per event category.
type Hooks struct {
	Resolve  ResolveHooks
	Build    BuildHooks
	Download DownloadHooks
}

// WithDefaults returns a copy with every nil category replaced by its no-op.
func (h Hooks) WithDefaults() Hooks {
	if h.Resolve == nil {
		h.Resolve = NoopResolveHooks{}
	}
	if h.Build == nil {
		h.Build = NoopBuildHooks{}
	}
	if h.Download == nil {
		h.Download = NoopDownloadHooks{}
	}
	return h
}

// =============================================================================
// Logging Implementation
// =============================================================================

// LogHooks reports every event at debug level.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns a Hooks value whose categories all log to l.
func NewLogHooks(l *log.Logger) Hooks {
	lh := &LogHooks{Logger: l}
	return Hooks{Resolve: lh, Build: lh, Download: lh}
}

func (h *LogHooks) OnResolveStart(_ context.Context, roots []string) {
	h.Logger.Debug("resolve start", "roots", roots)
}

func (h *LogHooks) OnResolveComplete(_ context.Context, instances int, d time.Duration, err error) {
	h.Logger.Debug("resolve complete", "instances", instances, "duration", d.Round(time.Millisecond), "err", err)
}

func (h *LogHooks) OnBuildStart(_ context.Context, library, hash string) {
	h.Logger.Debug("build start", "library", library, "hash", short(hash))
}

func (h *LogHooks) OnBuildComplete(_ context.Context, library, hash string, cached bool, d time.Duration, err error) {
	h.Logger.Debug("build complete", "library", library, "hash", short(hash), "cached", cached, "duration", d.Round(time.Millisecond), "err", err)
}

func (h *LogHooks) OnDownloadStart(_ context.Context, url string) {
	h.Logger.Debug("download start", "url", url)
}

func (h *LogHooks) OnDownloadComplete(_ context.Context, url string, n int64, cached bool, d time.Duration, err error) {
	h.Logger.Debug("download complete", "url", url, "bytes", n, "cached", cached, "duration", d.Round(time.Millisecond), "err", err)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
