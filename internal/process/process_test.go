package process

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProcess creates a Process with short timeouts for testing.
func newTestProcess(command string) *Process {
	p := NewProcess("test", command, testLogger())
	p.SetTimeouts(100*time.Millisecond, 100*time.Millisecond)
	return p
}

// runAsync runs Run in a goroutine and returns the exit code channel.
func runAsync(ctx context.Context, p *Process) <-chan int {
	done := make(chan int, 1)
	go func() {
		done <- p.Run(ctx)
	}()
	return done
}

// waitForExit waits for exit code with timeout, fails test on timeout.
func waitForExit(t *testing.T, done <-chan int, timeout time.Duration) int {
	t.Helper()
	select {
	case exitCode := <-done:
		return exitCode
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return -1
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess(`sh -c "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"`)
	p.SetTimeouts(time.Second, 100*time.Millisecond)

	var (
		mu   sync.Mutex
		exit *Exit
	)
	p.OnExit(func(e Exit) {
		mu.Lock()
		exit = &e
		mu.Unlock()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}

	// OnExit runs right after Done closes.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if exit == nil {
		t.Fatal("OnExit was not called")
	}
	if !exit.Requested {
		t.Error("expected Requested exit")
	}
	if p.State() != StateIdle {
		t.Errorf("State = %s, want idle", p.State())
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	// Process that ignores SIGINT
	p := newTestProcess(`sh -c "trap '' INT; sleep 10"`)
	p.SetTimeouts(50*time.Millisecond, 200*time.Millisecond)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if code := p.Stop(); code != KilledExitCode {
		t.Errorf("expected exit code %d, got %d", KilledExitCode, code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("stop took too long: %v", elapsed)
	}

	select {
	case <-p.Done():
	default:
		t.Error("Done not closed after kill")
	}
}

func TestContextCancellation(t *testing.T) {
	p := newTestProcess("sleep 10")

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, p)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	cancel()
	waitForExit(t, done, 500*time.Millisecond)

	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}

func TestProcessAlreadyExited(t *testing.T) {
	p := newTestProcess("true")

	done := runAsync(context.Background(), p)
	if exitCode := waitForExit(t, done, 500*time.Millisecond); exitCode != 0 {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}

	// Stop after the process has already exited returns the same code.
	if code := p.Stop(); code != 0 {
		t.Errorf("Stop after exit = %d, want 0", code)
	}
}

func TestUnrequestedExit(t *testing.T) {
	p := newTestProcess("sh -c 'exit 3'")

	exits := make(chan Exit, 1)
	p.OnExit(func(e Exit) { exits <- e })

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case e := <-exits:
		if e.Code != 3 {
			t.Errorf("Code = %d, want 3", e.Code)
		}
		if e.Requested {
			t.Error("exit reported as requested")
		}
	case <-time.After(time.Second):
		t.Fatal("OnExit not called")
	}

	if p.State() != StateError {
		t.Errorf("State = %s, want error", p.State())
	}
	if info := p.Info(); info.LastExit == nil || info.LastExit.Code != 3 || info.PID != 0 {
		t.Errorf("Info = %+v", info)
	}
}

func TestStartTwice(t *testing.T) {
	p := newTestProcess("true")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-p.Done()
	if err := p.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"empty", ""},
		{"unclosed quote", `echo "hello`},
		{"not found", "/nonexistent/command/that/does/not/exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcess(tt.command)
			if err := p.Start(); err == nil {
				t.Fatal("expected error")
			}
			select {
			case <-p.Done():
			default:
				t.Error("Done not closed after failed start")
			}
			if p.State() != StateError {
				t.Errorf("State = %s, want error", p.State())
			}
			if code := p.Stop(); code != 1 {
				t.Errorf("Stop = %d, want 1", code)
			}
		})
	}
}

func TestRunWithInvalidCommand(t *testing.T) {
	p := newTestProcess(`echo "unclosed`)
	if code := p.Run(context.Background()); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestProcessExitWithError(t *testing.T) {
	p := newTestProcess("sh -c 'exit 42'")
	if code := p.Run(context.Background()); code != 42 {
		t.Errorf("expected exit code 42, got %d", code)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := newTestProcess("sleep 10")
	if code := p.Stop(); code != 0 {
		t.Errorf("Stop before Start = %d, want 0", code)
	}
	if p.State() != StateIdle {
		t.Errorf("State = %s, want idle", p.State())
	}
}

func TestStdoutConsumer(t *testing.T) {
	p := newTestProcess(`printf 'abcdef'`)

	got := make(chan string, 1)
	p.SetStdoutConsumer(func(r io.Reader) {
		data, _ := io.ReadAll(r)
		got <- string(data)
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case s := <-got:
		if s != "abcdef" {
			t.Errorf("consumer read %q, want abcdef", s)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer not called")
	}
	<-p.Done()
}

func TestStdoutConsumerReturnsEarly(t *testing.T) {
	// The consumer stops reading; the rest must be drained or the child blocks.
	p := newTestProcess(`sh -c "head -c 262144 /dev/zero"`)
	p.SetStdoutConsumer(func(r io.Reader) {
		buf := make([]byte, 16)
		_, _ = r.Read(buf)
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		p.Stop()
		t.Fatal("process blocked on unread stdout")
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) record(level, msg string) {
	r.mu.Lock()
	r.lines = append(r.lines, level+":"+msg)
	r.mu.Unlock()
}

func (r *recordingLogger) Debug(msg string, _ ...any) { r.record("debug", msg) }
func (r *recordingLogger) Info(msg string, _ ...any)  { r.record("info", msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.record("warn", msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.record("error", msg) }

func TestStreamOutputLogLevels(t *testing.T) {
	p := newTestProcess("unused")
	out := &recordingLogger{}
	p.SetLogParser(out, func(line string) (string, string) {
		level, msg, _ := strings.Cut(line, " ")
		return level, msg
	})

	p.streamOutput(strings.NewReader("error boom\nwarning careful\ntrace deep\nverbose chatter\n"), "stderr")

	want := []string{"error:boom", "warn:careful", "debug:deep", "info:chatter"}
	if !reflect.DeepEqual(out.lines, want) {
		t.Errorf("logged %v, want %v", out.lines, want)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"ffmpeg -i input.mp4", []string{"ffmpeg", "-i", "input.mp4"}},
		{`ffmpeg -f sdl "Capture Preview"`, []string{"ffmpeg", "-f", "sdl", "Capture Preview"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`echo hello\ world`, []string{"echo", "hello world"}},
		{`echo "say \"hi\""`, []string{"echo", `say "hi"`}},
		{`echo ''`, []string{"echo", ""}},
		{"  spaced   out  ", []string{"spaced", "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := parseCommand(tt.command)
			if err != nil {
				t.Fatalf("parseCommand: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCommand(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}
