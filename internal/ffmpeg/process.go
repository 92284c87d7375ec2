package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultStopTimeout is how long a process gets to exit after SIGINT before
// it is killed.
const DefaultStopTimeout = 5 * time.Second

const stderrTail = 8 << 10

// Process is one ffmpeg child process. Output pipes are real OS pipes owned
// by the caller, so the last bytes written before exit are never lost to
// Wait closing them.
type Process struct {
	name string
	cmd  *exec.Cmd

	closeAfterStart []io.Closer
	stderr          *tailWriter

	startOnce sync.Once
	done      chan struct{}
	waitErr   error
}

// LogLevelEnv overrides the -loglevel of every ffmpeg process.
const LogLevelEnv = "FFMPEG_LOGLEVEL"

// New prepares an ffmpeg process with the given arguments. name labels log
// lines.
func New(name string, args ...string) *Process {
	return NewCommand(name, exec.Command(Binary(), withLogLevel(args, os.Getenv(LogLevelEnv))...))
}

func withLogLevel(args []string, level string) []string {
	if level == "" {
		return args
	}
	out := append([]string(nil), args...)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "-loglevel" {
			out[i+1] = level
			return out
		}
	}
	return append([]string{"-loglevel", level}, out...)
}

// NewCommand wraps an existing command.
func NewCommand(name string, cmd *exec.Cmd) *Process {
	p := &Process{
		name:   name,
		cmd:    cmd,
		stderr: &tailWriter{name: name, max: stderrTail},
		done:   make(chan struct{}),
	}
	cmd.Stderr = p.stderr
	return p
}

// Args returns the full command line.
func (p *Process) Args() []string {
	return p.cmd.Args
}

// OutputPipe connects the process stdout to a pipe read by the caller.
func (p *Process) OutputPipe() (io.ReadCloser, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	p.cmd.Stdout = w
	p.closeAfterStart = append(p.closeAfterStart, w)
	return r, nil
}

// InputPipe connects the process stdin (pipe:0) to a pipe written by the
// caller.
func (p *Process) InputPipe() (io.WriteCloser, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	p.cmd.Stdin = r
	p.closeAfterStart = append(p.closeAfterStart, r)
	return w, nil
}

// ExtraInputPipe adds an inherited descriptor the process reads from. It
// returns the writer and the ffmpeg URL naming the descriptor (pipe:3,
// pipe:4, ...).
func (p *Process) ExtraInputPipe() (io.WriteCloser, string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, "", fmt.Errorf("create extra pipe: %w", err)
	}
	p.cmd.ExtraFiles = append(p.cmd.ExtraFiles, r)
	p.closeAfterStart = append(p.closeAfterStart, r)
	return w, fmt.Sprintf("pipe:%d", 2+len(p.cmd.ExtraFiles)), nil
}

// Start launches the process. Wait runs in the background; Done is closed
// when the process has exited.
func (p *Process) Start() error {
	slog.Debug("Starting ffmpeg", "process", p.name, "command", strings.Join(p.cmd.Args, " "))

	err := p.cmd.Start()
	for _, c := range p.closeAfterStart {
		c.Close()
	}
	p.closeAfterStart = nil
	if err != nil {
		return fmt.Errorf("failed to start ffmpeg (%s): %w", p.name, err)
	}

	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.done)
	}()
	return nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits. Exits caused by Stop are not errors.
func (p *Process) Wait() error {
	<-p.done
	if p.waitErr == nil || IsInterruptExit(p.waitErr) {
		return nil
	}
	return fmt.Errorf("ffmpeg (%s) failed: %w: %s", p.name, p.waitErr, p.Stderr())
}

// Stop asks the process to finish with SIGINT, so muxers can write their
// trailer, and kills it if it is still running after timeout.
func (p *Process) Stop(timeout time.Duration) error {
	if p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.done:
		return p.Wait()
	default:
	}

	slog.Debug("Sending SIGINT to ffmpeg", "process", p.name)
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to interrupt ffmpeg, killing", "process", p.name, "error", err)
		p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
		return p.Wait()
	case <-time.After(timeout):
		slog.Warn("ffmpeg did not exit within timeout, force killing", "process", p.name, "timeout", timeout)
		p.cmd.Process.Kill()
		<-p.done
		return nil
	}
}

// Kill terminates the process immediately and waits for it.
func (p *Process) Kill() {
	if p.cmd.Process == nil {
		return
	}
	p.cmd.Process.Kill()
	<-p.done
}

// Stderr returns the tail of the process diagnostics.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// IsInterruptExit reports whether err is ffmpeg exiting because it was told
// to: status 255 after SIGINT, or death by interrupt or kill.
func IsInterruptExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		s := exitErr.ProcessState.String()
		return s == "signal: interrupt" || s == "signal: killed"
	}
	return false
}

// tailWriter keeps the last max bytes written and logs complete lines.
type tailWriter struct {
	name string
	max  int

	mu      sync.Mutex
	buf     []byte
	partial []byte
}

func (w *tailWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}

	w.partial = append(w.partial, b...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.partial[:i])); line != "" {
			slog.Debug("FFmpeg output", "process", w.name, "line", line)
		}
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > w.max {
		w.partial = w.partial[len(w.partial)-w.max:]
	}
	return len(b), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
