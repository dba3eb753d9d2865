package executor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout is the hard wall-clock limit for a single CLI call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutput caps captured stdout/stderr per stream.
	DefaultMaxOutput = 50 * 1024 * 1024
)

// Result is the outcome of one CLI invocation. Failures are never
// returned as errors: a timeout, non-zero exit, or unlaunchable binary
// all surface as a populated Stderr alongside whatever partial Stdout
// was captured.
type Result struct {
	Stdout string
	Stderr string
}

// Failed reports whether the invocation produced error output.
func (r Result) Failed() bool {
	return r.Stderr != ""
}

// PageOutcome tags the result of a page-state probe.
type PageOutcome int

const (
	// PageOK means the browser is open and URL/Title are valid.
	PageOK PageOutcome = iota
	// PageNoBrowser means no browser instance is running.
	PageNoBrowser
	// PageToolError means the CLI itself failed to answer.
	PageToolError
)

// PageState is the typed result of probing the browser for its current
// URL and title, replacing ad hoc string matching in callers.
type PageState struct {
	Outcome PageOutcome
	URL     string
	Title   string
	Message string // populated for PageToolError
}

// Runner executes browser CLI commands. Implemented by Executor;
// declared so the coordinator can be tested against a fake.
type Runner interface {
	Execute(ctx context.Context, command string) Result
	ProbePage(ctx context.Context) PageState
}

// Executor shells out to the browser automation CLI. Each call spawns
// one process; there is no queuing, concurrent calls race on the single
// browser the CLI manages.
type Executor struct {
	bin       string
	timeout   time.Duration
	maxOutput int
	log       *zap.SugaredLogger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout overrides the per-call wall-clock limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxOutput overrides the per-stream capture cap.
func WithMaxOutput(n int) Option {
	return func(e *Executor) { e.maxOutput = n }
}

// New creates an Executor that prefixes every command with bin.
func New(bin string, log *zap.SugaredLogger, opts ...Option) *Executor {
	e := &Executor{
		bin:       bin,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a single CLI command through the shell. The command
// string is forwarded verbatim after the binary name; callers are
// trusted by proximity, no extra escaping is applied.
func (e *Executor) Execute(ctx context.Context, command string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", e.bin+" "+command)
	// Unblocks Wait when a killed CLI leaves a grandchild holding the
	// output pipes.
	cmd.WaitDelay = time.Second

	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(e.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil && res.Stderr == "" {
		if ctx.Err() == context.DeadlineExceeded {
			res.Stderr = "command timed out"
		} else {
			res.Stderr = err.Error()
		}
	}

	if err != nil {
		e.log.Debugw("browser command failed",
			"command", command, "error", err, "stderr", res.Stderr)
	}

	return res
}

// ProbePage asks the CLI for the current URL and title in parallel and
// classifies the answers into a typed outcome.
func (e *Executor) ProbePage(ctx context.Context) PageState {
	var urlRes, titleRes Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		urlRes = e.Execute(gctx, "get url")
		return nil
	})
	g.Go(func() error {
		titleRes = e.Execute(gctx, "get title")
		return nil
	})
	_ = g.Wait()

	url := strings.TrimSpace(urlRes.Stdout)
	title := strings.TrimSpace(titleRes.Stdout)

	switch {
	case urlRes.Failed() && url == "":
		return PageState{Outcome: PageToolError, Message: urlRes.Stderr}
	case url == "" || strings.Contains(url, "No browser"):
		return PageState{Outcome: PageNoBrowser}
	case strings.Contains(url, "Error"):
		return PageState{Outcome: PageToolError, Message: url}
	default:
		return PageState{Outcome: PageOK, URL: url, Title: title}
	}
}

// cappedBuffer discards writes past its limit so a runaway command
// cannot exhaust memory, while keeping the partial output captured so
// far.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
