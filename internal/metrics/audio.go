package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	audioStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audio",
		Name:      "engine_starts_total",
		Help:      "Audio engine start attempts by result",
	}, []string{"result"})

	audioRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "audio",
		Name:      "engine_running",
		Help:      "1 while the audio engine is playing",
	})

	audioBuffers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audio",
		Name:      "buffers_total",
		Help:      "Captured audio buffers by outcome",
	}, []string{"outcome"})

	audioFramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audio",
		Name:      "frames_rendered_total",
		Help:      "Frames handed to the playback device",
	})

	audioRoutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audio",
		Name:      "route_taps_total",
		Help:      "Output routing tap outcomes",
	}, []string{"outcome"})
)

// Buffer outcomes.
const (
	BufferScheduled = "scheduled"
	BufferDropped   = "dropped"
	BufferRejected  = "rejected"
)

// RecordAudioStart counts an engine start with its result
// ("ok" or a short failure reason).
func RecordAudioStart(result string) {
	audioStarts.WithLabelValues(result).Inc()
}

// SetAudioRunning flips the running gauge.
func SetAudioRunning(running bool) {
	if running {
		audioRunning.Set(1)
		return
	}
	audioRunning.Set(0)
}

// RecordAudioBuffer counts a captured buffer by outcome.
func RecordAudioBuffer(outcome string) {
	audioBuffers.WithLabelValues(outcome).Inc()
}

// AddFramesRendered adds to the rendered frame counter.
func AddFramesRendered(n int) {
	if n > 0 {
		audioFramesRendered.Add(float64(n))
	}
}

// RecordRouteTap counts a routing tap outcome.
func RecordRouteTap(outcome string) {
	audioRoutes.WithLabelValues(outcome).Inc()
}
