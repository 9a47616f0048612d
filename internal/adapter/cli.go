package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/model"
)

// supervisorInterval is how often the supervisor checks activity and
// wall-clock timeouts.
const supervisorInterval = 500 * time.Millisecond

// readChunkSize is the stream drain granularity. Small enough that
// lastActivity stays fresh while a model streams tokens.
const readChunkSize = 4096

// CLI drives a local command-line AI tool as a backend. The subprocess
// runs with stdin closed and both output streams drained concurrently;
// a supervisor kills the process group when output stalls past the
// activity timeout or the hard timeout elapses.
type CLI struct {
	name   string
	cfg    config.AdapterConfig
	parse  outputParser
	logger *slog.Logger
}

// NewCLI builds a subprocess adapter for the named backend.
func NewCLI(name string, cfg config.AdapterConfig, logger *slog.Logger) *CLI {
	return &CLI{
		name:   name,
		cfg:    cfg,
		parse:  parserFor(name),
		logger: logger.With("backend", name, "adapter", "cli"),
	}
}

func (a *CLI) Name() string { return a.name }

// Invoke runs the configured command, retrying transient failures with
// exponential backoff up to max_retries.
func (a *CLI) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	prompt := fullPrompt(req)
	if err := checkPromptLength(prompt, a.cfg.MaxPromptChars); err != nil {
		return "", err
	}

	replacer := strings.NewReplacer(
		"{model}", req.Model,
		"{prompt}", prompt,
		"{working_directory}", req.WorkingDir,
		"{reasoning_effort}", req.ReasoningEffort,
	)
	args := make([]string, len(a.cfg.Args))
	for i, tmpl := range a.cfg.Args {
		args[i] = replacer.Replace(tmpl)
	}

	for attempt := 0; ; attempt++ {
		raw, err := a.runOnce(ctx, args, req)
		if err == nil {
			return a.parse(raw), nil
		}

		var transient *model.TransientError
		if !errors.As(err, &transient) {
			return "", err
		}
		if attempt >= a.cfg.MaxRetries {
			return "", &model.BackendError{Backend: a.name, Msg: transient.Msg}
		}
		a.logger.Warn("transient backend failure, retrying",
			"model", req.Model,
			"attempt", attempt+1,
			"max_retries", a.cfg.MaxRetries,
			"error", transient.Msg)
		if err := backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
}

func (a *CLI) runOnce(ctx context.Context, args []string, req InvokeRequest) (string, error) {
	cmd := exec.Command(a.cfg.Command, args...)
	// Own process group so a kill reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: err.Error()}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: err.Error()}
	}
	a.logger.Debug("invocation started", "model", req.Model, "pid", cmd.Process.Pid)

	var (
		lastActivity  atomic.Int64
		bytesReceived atomic.Int64
		timedOut      atomic.Bool
		activityKill  atomic.Bool
	)
	lastActivity.Store(start.UnixNano())

	var outBuf, errBuf bytes.Buffer
	readers := new(errgroup.Group)
	readers.Go(func() error { return drain(stdout, &outBuf, &lastActivity, &bytesReceived) })
	readers.Go(func() error { return drain(stderr, &errBuf, &lastActivity, &bytesReceived) })

	supervisorDone := make(chan struct{})
	streamsDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		ticker := time.NewTicker(supervisorInterval)
		defer ticker.Stop()
		polls := 0
		for {
			select {
			case <-streamsDone:
				return
			case <-ctx.Done():
				a.killGroup(cmd)
				return
			case <-ticker.C:
				now := time.Now()
				idle := now.Sub(time.Unix(0, lastActivity.Load()))
				if idle > a.cfg.ActivityTimeout() {
					activityKill.Store(true)
					timedOut.Store(true)
					a.logger.Warn("activity timeout, killing process",
						"model", req.Model, "idle", idle.Round(time.Millisecond))
					a.killGroup(cmd)
					return
				}
				if now.Sub(start) > a.cfg.Timeout() {
					timedOut.Store(true)
					a.logger.Warn("hard timeout, killing process",
						"model", req.Model, "elapsed", now.Sub(start).Round(time.Millisecond))
					a.killGroup(cmd)
					return
				}
				polls++
				if polls%10 == 0 {
					a.logger.Debug("invocation in progress",
						"model", req.Model,
						"bytes_received", bytesReceived.Load(),
						"elapsed", now.Sub(start).Round(time.Second))
				}
			}
		}
	}()

	readErr := readers.Wait()
	close(streamsDone)
	waitErr := cmd.Wait()
	<-supervisorDone
	elapsed := time.Since(start)

	if timedOut.Load() {
		return "", &model.TimeoutError{
			Backend:  a.name,
			Activity: activityKill.Load(),
			Elapsed:  elapsed.Round(time.Millisecond).String(),
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if readErr != nil {
		return "", &model.BackendError{Backend: a.name, Msg: "read output: " + readErr.Error()}
	}
	if waitErr != nil {
		stderrMsg := errBuf.String()
		if isTransient(stderrMsg) {
			return "", &model.TransientError{Backend: a.name, Msg: firstLine(stderrMsg)}
		}
		msg := firstLine(stderrMsg)
		if msg == "" {
			msg = waitErr.Error()
		}
		return "", &model.BackendError{Backend: a.name, Msg: msg}
	}

	a.logger.Debug("invocation done",
		"model", req.Model,
		"bytes_received", bytesReceived.Load(),
		"elapsed", elapsed.Round(time.Millisecond))
	return outBuf.String(), nil
}

// drain reads r in small chunks into buf, refreshing the activity
// timestamp on every non-empty chunk.
func drain(r io.Reader, buf *bytes.Buffer, lastActivity, total *atomic.Int64) error {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			lastActivity.Store(time.Now().UnixNano())
			total.Add(int64(n))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A closed pipe after a kill is expected, not a read failure.
			if errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "file already closed") {
				return nil
			}
			return err
		}
	}
}

func (a *CLI) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid targets the whole process group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
