// Package process runs external programs and streams their output.
//
// Standard output and standard error are drained by two concurrent
// readers, so a child filling one pipe never blocks on the other. Output
// is decoded line by line: valid UTF-8 is used as is, anything else goes
// through a legacy fallback encoding (Shift_JIS unless configured). Each
// line is forwarded to the logger as it arrives and also collected into
// the [Result].
package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// DefaultEncoding is the fallback used for output that is not UTF-8.
const DefaultEncoding = "shift_jis"

// Stream names one of the child's output streams.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// LineFunc receives each decoded output line.
type LineFunc func(stream Stream, line string)

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the child's working directory. It is never applied to the
	// calling process.
	Dir string
	// Env entries are appended to the current environment.
	Env   []string
	Stdin io.Reader
	// Label tags log lines, e.g. "cmake:configure".
	Label string
	// OnLine, if set, is called for every line in addition to logging.
	OnLine LineFunc
}

// String renders the command line, quoting arguments with spaces.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, a := range append([]string{c.Name}, c.Args...) {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Err returns an EXTERNAL_TOOL_FAILURE error for a non-zero exit.
func (r *Result) Err(program string) error {
	if r.ExitCode == 0 {
		return nil
	}
	return &errors.ToolFailureError{Program: program, ExitCode: r.ExitCode, Stderr: tail(r.Stderr, 20)}
}

func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Runner starts processes. It is safe for concurrent use.
type Runner struct {
	logger   *log.Logger
	fallback encoding.Encoding
}

// Option configures a Runner.
type Option func(*Runner)

// WithFallback sets the encoding tried when a line is not valid UTF-8.
func WithFallback(enc encoding.Encoding) Option {
	return func(r *Runner) { r.fallback = enc }
}

// Encoding looks up a fallback encoding by its WHATWG name or alias,
// e.g. "shift_jis", "windows-1252", "gbk".
func Encoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "unknown encoding %q", name)
	}
	return enc, nil
}

// New creates a Runner logging to logger. A nil logger discards output.
func New(logger *log.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Runner{logger: logger}
	for _, o := range opts {
		o(r)
	}
	if r.fallback == nil {
		r.fallback, _ = htmlindex.Get(DefaultEncoding)
	}
	return r
}

// WithLogger returns a copy of r logging to logger.
func (r *Runner) WithLogger(logger *log.Logger) *Runner {
	cp := *r
	cp.logger = logger
	return &cp
}

// Run starts the command and waits for it. Both output streams are read to
// the end before the process is reaped. A non-zero exit is reported in
// Result.ExitCode, not as an error; see [Result.Err].
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stderr pipe")
	}

	r.logger.Info("Commandline: " + c.String())
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalToolFailure, err, "start %s", c.Name)
	}

	// Serialize callbacks so log lines from the two streams never interleave
	// mid-record.
	var mu sync.Mutex
	emit := func(stream Stream) func(string) {
		prefix := string(stream)
		if c.Label != "" {
			prefix += ":" + c.Label
		}
		prefix += ">"
		return func(line string) {
			mu.Lock()
			defer mu.Unlock()
			r.logger.Info(prefix + line)
			if c.OnLine != nil {
				c.OnLine(stream, line)
			}
		}
	}

	outDec := newLineDecoder(r.fallback, emit(Stdout))
	errDec := newLineDecoder(r.fallback, emit(Stderr))

	var g errgroup.Group
	g.Go(func() error { return outDec.drain(stdout) })
	g.Go(func() error { return errDec.drain(stderr) })
	readErr := g.Wait()
	waitErr := cmd.Wait()

	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   outDec.text(),
		Stderr:   errDec.text(),
	}

	var exitErr *exec.ExitError
	if waitErr != nil && errors.As(waitErr, &exitErr) {
		waitErr = nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err := multierr.Combine(readErr, waitErr); err != nil {
		return res, errors.Wrap(errors.ErrCodeExternalToolFailure, err, "run %s", c.Name)
	}
	return res, nil
}

// lineDecoder splits a byte stream into lines and decodes each one. A
// partial line is kept across reads and flushed at end of stream.
type lineDecoder struct {
	fallback encoding.Encoding
	emit     func(string)
	pending  []byte
	lines    []string
}

func newLineDecoder(fallback encoding.Encoding, emit func(string)) *lineDecoder {
	return &lineDecoder{fallback: fallback, emit: emit}
}

func (d *lineDecoder) drain(rd io.Reader) error {
	br := bufio.NewReaderSize(rd, 32*1024)
	buf := make([]byte, 32*1024)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			d.write(buf[:n])
		}
		if err == io.EOF {
			d.flush()
			return nil
		}
		if err != nil {
			d.flush()
			return fmt.Errorf("read output: %w", err)
		}
	}
}

func (d *lineDecoder) write(p []byte) {
	d.pending = append(d.pending, p...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			return
		}
		d.line(d.pending[:i])
		d.pending = d.pending[i+1:]
	}
}

func (d *lineDecoder) flush() {
	if len(d.pending) > 0 {
		d.line(d.pending)
		d.pending = nil
	}
}

func (d *lineDecoder) line(raw []byte) {
	s := d.decode(bytes.TrimSuffix(raw, []byte{'\r'}))
	d.lines = append(d.lines, s)
	d.emit(s)
}

func (d *lineDecoder) decode(raw []byte) string {
	if utf8.Valid(raw) || d.fallback == nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	out, err := d.fallback.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(out)
}

func (d *lineDecoder) text() string { return strings.Join(d.lines, "\n") }
