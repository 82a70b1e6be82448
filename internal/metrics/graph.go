// Package metrics provides Prometheus metrics for the session controller,
// the audio engine and the capture graph.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "dongled"

var (
	graphFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "graph",
		Name:      "fps",
		Help:      "Current preview frames per second",
	}, []string{"graph_id"})

	graphDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "graph",
		Name:      "dropped_frames_total",
		Help:      "Total dropped preview frames",
	}, []string{"graph_id"})

	graphSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "graph",
		Name:      "processing_speed",
		Help:      "Capture processing speed multiplier",
	}, []string{"graph_id"})

	graphExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "graph",
		Name:      "exits_total",
		Help:      "Capture graph process exits",
	}, []string{"requested"})

	// Local cache for SSE exporter access.
	graphCache   = make(map[string]*GraphMetrics)
	graphCacheMu sync.RWMutex
)

// GraphMetrics holds current metric values for a graph.
type GraphMetrics struct {
	FPS           float64
	DroppedFrames float64
	Speed         float64
}

// SetGraphFPS sets the current FPS for a graph.
func SetGraphFPS(graphID string, fps float64) {
	graphFPS.WithLabelValues(graphID).Set(fps)
	updateCache(graphID, func(m *GraphMetrics) { m.FPS = fps })
}

// SetGraphDroppedFrames sets the dropped frames count for a graph.
func SetGraphDroppedFrames(graphID string, count float64) {
	graphDroppedFrames.WithLabelValues(graphID).Set(count)
	updateCache(graphID, func(m *GraphMetrics) { m.DroppedFrames = count })
}

// SetGraphSpeed sets the processing speed for a graph.
func SetGraphSpeed(graphID string, speed float64) {
	graphSpeed.WithLabelValues(graphID).Set(speed)
	updateCache(graphID, func(m *GraphMetrics) { m.Speed = speed })
}

// RecordGraphExit counts a graph process exit.
func RecordGraphExit(requested bool) {
	label := "false"
	if requested {
		label = "true"
	}
	graphExits.WithLabelValues(label).Inc()
}

// DeleteGraphMetrics removes all metrics for a graph.
func DeleteGraphMetrics(graphID string) {
	graphFPS.DeleteLabelValues(graphID)
	graphDroppedFrames.DeleteLabelValues(graphID)
	graphSpeed.DeleteLabelValues(graphID)

	graphCacheMu.Lock()
	delete(graphCache, graphID)
	graphCacheMu.Unlock()
}

// GetGraphMetrics returns current metric values for a graph.
func GetGraphMetrics(graphID string) *GraphMetrics {
	graphCacheMu.RLock()
	defer graphCacheMu.RUnlock()
	if m, ok := graphCache[graphID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllGraphMetrics returns metrics for all live graphs.
func GetAllGraphMetrics() map[string]*GraphMetrics {
	graphCacheMu.RLock()
	defer graphCacheMu.RUnlock()
	result := make(map[string]*GraphMetrics, len(graphCache))
	for id, m := range graphCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(graphID string, update func(*GraphMetrics)) {
	graphCacheMu.Lock()
	defer graphCacheMu.Unlock()
	m, ok := graphCache[graphID]
	if !ok {
		m = &GraphMetrics{}
		graphCache[graphID] = m
	}
	update(m)
}
