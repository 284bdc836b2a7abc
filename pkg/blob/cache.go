package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/observability"
)

// Cache fetches and verifies source archives.
type Cache struct {
	root      string
	client    *http.Client
	algorithm Algorithm
	attempts  int
	delay     time.Duration
	force     bool
	logger    *log.Logger
	hooks     observability.DownloadHooks
}

// Option configures a Cache.
type Option func(*Cache)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option { return func(b *Cache) { b.client = c } }

// WithAlgorithm sets the signature digest. The default is SHA-256.
func WithAlgorithm(a Algorithm) Option { return func(b *Cache) { b.algorithm = a } }

// WithAttempts sets how many times a transient download failure is tried.
// The default is one attempt, i.e. no retries.
func WithAttempts(n int) Option { return func(b *Cache) { b.attempts = max(n, 1) } }

// WithRetryDelay sets the initial delay between attempts.
func WithRetryDelay(d time.Duration) Option { return func(b *Cache) { b.delay = d } }

// WithForceDownload evicts cached files before fetching them.
func WithForceDownload(force bool) Option { return func(b *Cache) { b.force = force } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(b *Cache) { b.logger = l } }

// WithHooks sets download hooks.
func WithHooks(h observability.DownloadHooks) Option { return func(b *Cache) { b.hooks = h } }

// New creates a Cache rooted at root.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:      root,
		client:    &http.Client{Timeout: 10 * time.Minute},
		algorithm: SHA256,
		attempts:  1,
		delay:     time.Second,
		logger:    log.New(io.Discard),
		hooks:     observability.NoopDownloadHooks{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// WithLogger returns a copy of c logging to l.
func (c *Cache) WithLogger(l *log.Logger) *Cache {
	cp := *c
	cp.logger = l
	return &cp
}

// Path returns where the archive for rawURL and signature is cached.
func (c *Cache) Path(rawURL, signature string) string {
	return c.pathExt(signature, Ext(rawURL))
}

func (c *Cache) pathExt(signature, ext string) string {
	sig := strings.ToLower(signature)
	return filepath.Join(c.root, sig[0:2], sig[2:4], sig+ext)
}

// Ext returns the archive extension of a URL, keeping compound tar
// extensions such as ".tar.gz" together.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := strings.ToLower(path.Base(p))
	for _, compound := range []string{".tar.gz", ".tar.xz", ".tar.bz2", ".tar.zst"} {
		if strings.HasSuffix(base, compound) {
			return compound
		}
	}
	return path.Ext(base)
}

// Fetch returns the local path of the archive at rawURL, downloading it if
// it is not cached, and verifies it against signature.
func (c *Cache) Fetch(ctx context.Context, rawURL, signature string) (string, error) {
	return c.FetchAs(ctx, rawURL, signature, Ext(rawURL))
}

// FetchAs is Fetch with an explicit file extension, for URLs that do not
// end in one.
func (c *Cache) FetchAs(ctx context.Context, rawURL, signature, ext string) (p string, err error) {
	if len(signature) < 4 {
		return "", errors.New(errors.ErrCodeConfiguration, "signature %q is too short", signature)
	}
	if err := errors.ValidateURL(rawURL); err != nil {
		return "", err
	}
	signature = strings.ToLower(signature)
	p = c.pathExt(signature, ext)

	if c.force {
		if err := removeFile(p); err != nil {
			return "", err
		}
		c.logger.Info("Force (re)download. Cached file erased.", "path", p)
	}

	start := time.Now()
	c.hooks.OnDownloadStart(ctx, rawURL)
	var n int64
	cached := exists(p)
	defer func() { c.hooks.OnDownloadComplete(ctx, rawURL, n, cached, time.Since(start), err) }()

	if cached {
		c.logger.Info("Cached file is available. Skip downloading.", "path", p)
	} else {
		c.logger.Info("Downloading...", "url", rawURL, "destination", p)
		err = retry(ctx, c.attempts, c.delay, func() error {
			var derr error
			n, derr = c.download(ctx, rawURL, p)
			return derr
		})
		if err != nil {
			return "", err
		}
	}

	if err := c.verify(p, signature); err != nil {
		return "", err
	}
	return p, nil
}

func (c *Cache) verify(p, signature string) error {
	got, err := FileSignature(p, c.algorithm)
	if err != nil {
		return err
	}
	c.logger.Debug("signature", "expected", signature, "calculated", got, "algorithm", c.algorithm)
	if !strings.EqualFold(got, signature) {
		if rmErr := removeFile(p); rmErr != nil {
			c.logger.Warn("could not remove mismatching file", "path", p, "err", rmErr)
		}
		return errors.New(errors.ErrCodeSignatureMismatch, "signature check failed for %s: expected %s, got %s", filepath.Base(p), signature, got)
	}
	c.logger.Info("Signature check OK.")
	return nil
}

func (c *Cache) download(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeConfiguration, err, "download %s", rawURL)
	}
	req.Header.Set("User-Agent", "distbuilder")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &retryableError{errors.Wrap(errors.ErrCodeIO, err, "download %s", rawURL)}
	}
	defer resp.Body.Close()
	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		return 0, err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(errors.ErrCodeIO, err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeIO, err, "create temp file in %s", dir)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, &retryableError{errors.Wrap(errors.ErrCodeIO, err, "download %s", rawURL)}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return n, errors.Wrap(errors.ErrCodeIO, err, "store %s", dst)
	}
	return n, nil
}

func checkStatus(rawURL string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code >= 500 || code == http.StatusTooManyRequests:
		return &retryableError{errors.New(errors.ErrCodeIO, "download %s: status %d", rawURL, code)}
	default:
		return errors.New(errors.ErrCodeIO, "download %s: status %d", rawURL, code)
	}
}

// Evict removes the cached archive for rawURL and signature.
func (c *Cache) Evict(rawURL, signature string) error {
	return removeFile(c.Path(rawURL, signature))
}

// Stats counts the cached files and their total size.
func (c *Cache) Stats() (files int, size int64, err error) {
	err = filepath.WalkDir(c.root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) && p == c.root {
				return fs.SkipAll
			}
			return werr
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			files++
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeIO, err, "scan %s", c.root)
	}
	return files, size, nil
}

// Clear removes every cached archive.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.root); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "clear %s", c.root)
	}
	return nil
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func removeFile(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeIO, err, "remove %s", p)
	}
	return nil
}

// String describes the cache for log output.
func (c *Cache) String() string {
	return fmt.Sprintf("blob cache %s (%s)", c.root, c.algorithm)
}
