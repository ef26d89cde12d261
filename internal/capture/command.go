package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
)

// DefaultCommand records mono 48 kHz audio from the default PipeWire source
// to stdout.
var DefaultCommand = []string{"pw-record", "--rate", "48000", "--channels", "1", "-"}

const stopGrace = 3 * time.Second

// CommandDevice captures from an external recorder process that writes audio
// to stdout.
type CommandDevice struct {
	Args   []string
	Env    []string
	Logger zerolog.Logger
}

// NewCommandDevice returns a device running args, or DefaultCommand when
// args is empty.
func NewCommandDevice(args []string, logger zerolog.Logger) *CommandDevice {
	if len(args) == 0 {
		args = DefaultCommand
	}
	return &CommandDevice{
		Args:   append([]string(nil), args...),
		Logger: logger.With().Str(logpkg.FieldComponent, "capture").Logger(),
	}
}

func (d *CommandDevice) Name() string {
	if len(d.Args) == 0 {
		return ""
	}
	return d.Args[0]
}

func (d *CommandDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(d.Args) == 0 {
		return nil, fmt.Errorf("%w: no capture command configured", ErrNoDevice)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(d.Args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoDevice, d.Args[0], err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create capture pipe: %w", err)
	}

	// The process is not bound to ctx: capture outlives the start request.
	cmd := exec.Command(path, d.Args[1:]...)
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	stderr := &boundedBuffer{limit: 4096}
	cmd.Stdout = pw
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("start %s: %w", d.Args[0], err)
	}
	pw.Close()

	d.Logger.Debug().
		Str(logpkg.FieldDevice, d.Name()).
		Str("command", strings.Join(d.Args, " ")).
		Int("pid", cmd.Process.Pid).
		Msg("capture process started")

	s := &commandStream{
		pr:     pr,
		cmd:    cmd,
		stderr: stderr,
		exited: make(chan struct{}),
		logger: d.Logger,
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	return s, nil
}

type commandStream struct {
	pr      *os.File
	cmd     *exec.Cmd
	stderr  *boundedBuffer
	exited  chan struct{}
	waitErr error
	logger  zerolog.Logger

	closeOnce sync.Once
	closeErr  error
	readOnce  sync.Once
}

func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.pr.Read(p)
	if err != nil {
		s.readOnce.Do(func() { s.pr.Close() })
	}
	return n, err
}

// Close interrupts the recorder process and waits for it to exit. Audio
// already written stays readable.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
		default:
			_ = s.cmd.Process.Signal(os.Interrupt)
			select {
			case <-s.exited:
			case <-time.After(stopGrace):
				s.logger.Warn().Msg("capture process ignored interrupt, killing")
				_ = s.cmd.Process.Kill()
				<-s.exited
			}
		}
		s.closeErr = s.exitError()
	})
	return s.closeErr
}

func (s *commandStream) exitError() error {
	if s.waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(s.waitErr, &exitErr) && !exitErr.Exited() {
		// Terminated by our own signal.
		return nil
	}
	msg := strings.ToLower(s.stderr.String())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not authorized"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(s.stderr.String()))
	case strings.Contains(msg, "no such"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s", ErrNoDevice, strings.TrimSpace(s.stderr.String()))
	}
	return fmt.Errorf("capture process: %w", s.waitErr)
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
