package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var openURL = func(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("no URL to open")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

const defaultRunnerWaitDelay = 2 * time.Second

type Runner struct {
	defaults  RunDescriptor
	delay     time.Duration
	waitDelay time.Duration
	stdout    io.Writer
	stderr    io.Writer
	log       *logrus.Logger
}

type RunResult struct {
	URL      string
	ExitCode int
	Started  bool
	Warning  string
}

func NewRunner(cfg Config, stdout io.Writer, stderr io.Writer, log *logrus.Logger) *Runner {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if log == nil {
		log = discardLogger()
	}
	return &Runner{
		defaults:  RunDescriptor{Host: cfg.AppHost, Port: cfg.AppPort, Manifest: defaultManifest},
		delay:     cfg.StartupDelay(),
		waitDelay: defaultRunnerWaitDelay,
		stdout:    stdout,
		stderr:    stderr,
		log:       log,
	}
}

// Run starts the project's entry point and blocks until it exits. The
// browser is opened after the startup delay while output keeps streaming.
func (r *Runner) Run(ctx context.Context, root string, env Environment) (RunResult, error) {
	desc, err := readRunDescriptor(root, r.defaults)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{URL: desc.URL()}

	cmd := exec.CommandContext(ctx, env.Interpreter, desc.Entrypoint)
	cmd.Dir = root
	cmd.Env = append(cmd.Environ(), "PYTHONUNBUFFERED=1")
	// The app gets its own process group so reloaders and other children
	// die with it on cancel.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Children that outlive the app may hold its output open.
	cmd.WaitDelay = r.waitDelay
	stderrTail := &tailBuffer{max: 4096}
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, stderrTail)

	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("start %s: %w", desc.Entrypoint, err)
	}
	result.Started = true
	r.log.WithFields(logrus.Fields{"entrypoint": desc.Entrypoint, "url": result.URL, "pid": cmd.Process.Pid}).Debug("app started")

	exited := make(chan struct{})
	browserDone := make(chan string, 1)
	go func() {
		warning := ""
		defer func() { browserDone <- warning }()
		select {
		case <-time.After(r.delay):
		case <-exited:
			return
		}
		if err := openURL(result.URL); err != nil {
			warning = "could not open browser: " + err.Error()
			r.log.WithError(err).Warn("could not open browser")
		}
	}()

	waitErr := cmd.Wait()
	close(exited)
	result.Warning = <-browserDone

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		r.log.Debug("app exited while a child still held its output")
		waitErr = nil
	}
	if waitErr != nil && ctx.Err() != nil {
		return result, fmt.Errorf("app stopped: %w", ctx.Err())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			msg := fmt.Sprintf("app exited with code %d", result.ExitCode)
			if tail := strings.TrimSpace(stderrTail.String()); tail != "" {
				msg += ":\n" + tail
			}
			return result, errors.New(msg)
		}
		return result, waitErr
	}
	return result, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
