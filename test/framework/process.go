package framework

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// WorkerProcess runs one flock-worker binary on this machine and captures
// its output
type WorkerProcess struct {
	Binary     string
	Kernel     string
	Port       int
	Generation string

	cmd  *exec.Cmd
	done chan struct{}
	err  error
	logs *LogBuffer
	mu   sync.Mutex
}

// NewWorkerProcess creates a worker serving kernel on port with a fresh
// generation token
func NewWorkerProcess(binary, kernel string, port int) *WorkerProcess {
	return &WorkerProcess{
		Binary:     binary,
		Kernel:     kernel,
		Port:       port,
		Generation: uuid.NewString(),
		logs:       &LogBuffer{},
	}
}

// Addr is the loopback address the worker listens on
func (p *WorkerProcess) Addr() string {
	return "127.0.0.1:" + strconv.Itoa(p.Port)
}

// Start launches the worker
func (p *WorkerProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("worker already started with PID %d", p.cmd.Process.Pid)
	}

	p.cmd = exec.Command(p.Binary,
		"--kernel", p.Kernel,
		"--port", strconv.Itoa(p.Port),
		"--bind", "127.0.0.1",
		"--generation", p.Generation,
		"--debug",
	)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		p.cmd = nil
		return fmt.Errorf("failed to start worker: %w", err)
	}

	go p.captureLogs(stdout)
	go p.captureLogs(stderr)

	p.done = make(chan struct{})
	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return nil
}

// Stop sends SIGTERM and kills the worker if it has not exited after 10s
func (p *WorkerProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return fmt.Errorf("worker not started")
	}
	if p.Exited() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(10 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("worker ignored SIGTERM")
	}
}

// Exited reports whether the worker process has terminated
func (p *WorkerProcess) Exited() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the worker exits or ctx is done
func (p *WorkerProcess) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return fmt.Errorf("worker not started")
	}
	select {
	case <-done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logs returns everything the worker has written so far
func (p *WorkerProcess) Logs() string {
	return p.logs.String()
}

// WaitForLog waits for a line containing pattern
func (p *WorkerProcess) WaitForLog(ctx context.Context, pattern string, timeout time.Duration) error {
	return NewWaiter(timeout, 100*time.Millisecond).WaitFor(ctx, func() bool {
		return p.logs.Contains(pattern)
	}, "log line "+strconv.Quote(pattern))
}

func (p *WorkerProcess) captureLogs(reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		p.logs.Append(scanner.Text())
	}
}

// LogBuffer is a goroutine-safe line buffer
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
}

// Append adds a log line
func (lb *LogBuffer) Append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.lines = append(lb.lines, line)
}

// String returns all lines joined by newlines
func (lb *LogBuffer) String() string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var buf bytes.Buffer
	for _, line := range lb.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// Contains reports whether any line contains pattern
func (lb *LogBuffer) Contains(pattern string) bool {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	for _, line := range lb.lines {
		if bytes.Contains([]byte(line), []byte(pattern)) {
			return true
		}
	}
	return false
}
