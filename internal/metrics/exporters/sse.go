package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// BusExporter periodically publishes graph metrics as GraphMetricsEvent,
// which the SSE endpoint forwards to clients.
type BusExporter struct {
	eventBus EventPublisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBusExporter creates a new exporter.
func NewBusExporter(eventBus EventPublisher) *BusExporter {
	return &BusExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the export loop.
func (s *BusExporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *BusExporter) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *BusExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *BusExporter) publishMetrics() {
	for graphID, m := range metrics.GetAllGraphMetrics() {
		s.eventBus.Publish(events.GraphMetricsEvent{
			GraphID:       graphID,
			FPS:           strconv.FormatFloat(m.FPS, 'f', 2, 64),
			DroppedFrames: strconv.FormatFloat(m.DroppedFrames, 'f', 0, 64),
			Speed:         strconv.FormatFloat(m.Speed, 'f', 2, 64),
			Timestamp:     events.Now(),
		})
	}
}
