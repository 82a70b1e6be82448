package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/dongled/internal/events"
)

// eventTypes names every event the stream can carry.
var eventTypes = map[string]any{
	"session-state":        events.SessionStateChangedEvent{},
	"device-attached":      events.DeviceAttachedEvent{},
	"device-detached":      events.DeviceDetachedEvent{},
	"candidates-presented": events.CandidatesPresentedEvent{},
	"lifecycle":            events.AppLifecycleEvent{},
	"permission-changed":   events.PermissionChangedEvent{},
	"audio-route":          events.AudioRouteEvent{},
	"graph-metrics":        events.GraphMetricsEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session state, device presence, lifecycle and preview metrics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeStream(s.eventBus, eventCh)
		defer unsubscribe()

		// New clients start from the current state.
		st := s.options.Session.Status()
		if err := send.Data(events.SessionStateChangedEvent{
			State:     string(st.State),
			Message:   st.Message,
			Device:    st.Device,
			Timestamp: events.Now(),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
