package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/dongled/internal/logging"
)

// ErrAlreadyStarted is returned by Start on a process that was started before.
var ErrAlreadyStarted = errors.New("process already started")

// KilledExitCode is reported when Stop had to kill the process group.
const KilledExitCode = 137

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg etc.)
type LogParser func(line string) (level, msg string)

// Process supervises a single run of a subprocess. A Process is started at
// most once; create a new one to run the command again.
type Process struct {
	id              string
	command         string
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	stdoutConsumer  func(io.Reader)
	onExit          func(Exit)
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after SIGKILL before giving up

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	stopping  bool
	killed    bool
	lastExit  *Exit
	done      chan struct{}
}

// NewProcess creates a new process for command.
func NewProcess(id, command string, logger logging.Logger) *Process {
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		state:           StateIdle,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
}

// ID returns the process identifier given to NewProcess.
func (p *Process) ID() string { return p.id }

// Command returns the command string.
func (p *Process) Command() string { return p.command }

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetStdoutConsumer hands the raw stdout stream to fn instead of logging
// it. Whatever fn leaves unread is discarded so the child never blocks.
func (p *Process) SetStdoutConsumer(fn func(io.Reader)) {
	p.stdoutConsumer = fn
}

// OnExit registers fn to run once after the process has exited and its
// output has been drained.
func (p *Process) OnExit(fn func(Exit)) {
	p.onExit = fn
}

// SetTimeouts overrides the SIGINT grace period and the wait after SIGKILL.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Start launches the subprocess in its own process group.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil || p.lastExit != nil {
		return ErrAlreadyStarted
	}

	args, err := parseCommand(p.command)
	if err != nil {
		return p.failStart(fmt.Errorf("failed to parse command: %w", err))
	}
	if len(args) == 0 {
		return p.failStart(fmt.Errorf("empty command"))
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("failed to create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return p.failStart(fmt.Errorf("failed to start process: %w", err))
	}

	p.cmd = cmd
	p.state = StateRunning
	p.startedAt = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.command)

	var outputs sync.WaitGroup
	outputs.Add(2)
	go func() {
		defer outputs.Done()
		if p.stdoutConsumer != nil {
			p.stdoutConsumer(stdout)
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer outputs.Done()
		p.streamOutput(stderr, "stderr")
	}()

	go p.wait(cmd, &outputs)
	return nil
}

func (p *Process) failStart(err error) error {
	p.logger.Error("Failed to start process", "id", p.id, "error", err)
	p.state = StateError
	p.lastExit = &Exit{Code: 1, Err: err}
	close(p.done)
	return err
}

// wait reaps the child after both pipes hit EOF.
func (p *Process) wait(cmd *exec.Cmd, outputs *sync.WaitGroup) {
	outputs.Wait()
	err := cmd.Wait()

	p.mu.Lock()
	exit := Exit{Code: exitCodeFromError(err), Requested: p.stopping}
	if p.killed {
		exit.Code = KilledExitCode
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		exit.Err = err
	}
	p.lastExit = &exit
	switch {
	case exit.Requested || exit.Code == 0:
		p.state = StateIdle
	default:
		p.state = StateError
	}
	onExit := p.onExit
	p.mu.Unlock()

	if exit.Requested {
		p.logger.Info("Process stopped", "id", p.id, "exit_code", exit.Code)
	} else {
		p.logger.Warn("Process exited", "id", p.id, "exit_code", exit.Code)
	}

	close(p.done)
	if onExit != nil {
		onExit(exit)
	}
}

// Stop asks the process to exit with SIGINT and kills its process group if
// it is still alive after the grace period. It blocks until the process is
// gone and returns its exit code. Stop on a process that is not running
// returns the last exit code.
func (p *Process) Stop() int {
	p.mu.Lock()
	cmd := p.cmd
	if cmd == nil {
		code := 0
		if p.lastExit != nil {
			code = p.lastExit.Code
		}
		p.mu.Unlock()
		return code
	}
	alreadyStopping := p.stopping
	if p.state == StateRunning {
		p.stopping = true
		p.state = StateStopping
	}
	p.mu.Unlock()

	if !alreadyStopping {
		p.sendStopSignal(cmd)
	}
	return p.waitForExit(cmd)
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal(cmd *exec.Cmd) {
	select {
	case <-p.done:
		return
	default:
	}
	p.logger.Info("Sending SIGINT to process", "id", p.id, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing
// the whole group if needed.
func (p *Process) waitForExit(cmd *exec.Cmd) int {
	select {
	case <-p.done:
		return p.exitCode()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process group", "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return KilledExitCode
}

// Run starts the process and blocks until it exits or ctx is cancelled,
// in which case the process is stopped. Returns the exit code.
func (p *Process) Run(ctx context.Context) int {
	if err := p.Start(); err != nil {
		return 1
	}
	select {
	case <-ctx.Done():
		p.logger.Info("Context cancelled, shutting down process", "id", p.id)
		return p.Stop()
	case <-p.done:
		return p.exitCode()
	}
}

// Done is closed once the process has exited or failed to start.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// State returns the current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		State:     p.state,
		StartedAt: p.startedAt,
		LastExit:  p.lastExit,
	}
	if p.cmd != nil && p.cmd.Process != nil && p.lastExit == nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

func (p *Process) exitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastExit == nil {
		return 0
	}
	return p.lastExit.Code
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput logs output from the subprocess line by line.
// Uses the configured processLogger (or falls back to default logger).
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "source", source)
		case "warning":
			logger.Warn(msg, "source", source)
		case "debug", "trace":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
		_, _ = io.Copy(io.Discard, reader)
	}
}
