// Package collectors feeds graph metrics from ffmpeg's -progress stream.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/metrics"
)

// ProgressCollector listens on a Unix socket for the key=value blocks
// ffmpeg writes with -progress unix://<path> and records them as metrics
// of one graph.
type ProgressCollector struct {
	logger     logging.Logger
	socketPath string
	graphID    string

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewProgressCollector creates a collector for graphID.
func NewProgressCollector(socketPath, graphID string) *ProgressCollector {
	return &ProgressCollector{
		logger:     logging.GetLogger("metrics"),
		socketPath: socketPath,
		graphID:    graphID,
	}
}

// SocketPath returns the path ffmpeg should connect to.
func (c *ProgressCollector) SocketPath() string { return c.socketPath }

// Start binds the socket before returning, so the process can be launched
// right after.
func (c *ProgressCollector) Start(ctx context.Context) error {
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to clean up old socket file", "socket", c.socketPath, "error", err)
	}

	listener, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.listener = listener
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		listener.Close()
	}()
	go func() {
		defer c.wg.Done()
		c.accept(ctx, listener)
	}()
	return nil
}

// Stop closes the socket, waits for readers and drops the graph's metrics.
func (c *ProgressCollector) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		os.Remove(c.socketPath)
		metrics.DeleteGraphMetrics(c.graphID)
	})
}

func (c *ProgressCollector) accept(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn("Error accepting progress connection", "error", err)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			defer conn.Close()
			c.read(conn)
		}()
	}
}

func (c *ProgressCollector) read(r io.Reader) {
	ReadProgress(r, func(block map[string]string) {
		Record(c.graphID, block)
	})
}

// ReadProgress splits an ffmpeg progress stream into blocks. Each block
// ends with a progress= line.
func ReadProgress(r io.Reader, fn func(map[string]string)) {
	scanner := bufio.NewScanner(r)
	block := make(map[string]string)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		block[key] = strings.TrimSpace(value)
		if key == "progress" {
			fn(block)
			block = make(map[string]string)
		}
	}
}

// Record stores the fields of one progress block for graphID. Unparseable
// values are skipped.
func Record(graphID string, block map[string]string) {
	if fps, err := strconv.ParseFloat(block["fps"], 64); err == nil {
		metrics.SetGraphFPS(graphID, fps)
	}
	if dropped, err := strconv.ParseFloat(block["drop_frames"], 64); err == nil {
		metrics.SetGraphDroppedFrames(graphID, dropped)
	}
	speed := strings.TrimSpace(strings.TrimSuffix(block["speed"], "x"))
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		metrics.SetGraphSpeed(graphID, v)
	}
}
