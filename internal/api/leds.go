package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// StatusLED is the LED that mirrors the session state.
type StatusLED interface {
	StatusLED() (ledType, pattern string)
}

type LEDRequest struct {
	Body struct {
		Type    string  `json:"type" example:"system" doc:"LED type (board-specific: system, user, act, green, etc.)"`
		Enabled bool    `json:"enabled" example:"true" doc:"Whether the LED should be on or off"`
		Pattern *string `json:"pattern,omitempty" example:"solid" enum:"solid,blink,heartbeat" doc:"Optional LED pattern"`
	}
}

// LEDOverride describes an applied override. An override of the status
// LED lasts until the session state next changes.
type LEDOverride struct {
	Type           string `json:"type" example:"system" doc:"LED type"`
	Enabled        bool   `json:"enabled" example:"true" doc:"Whether the LED is on"`
	Pattern        string `json:"pattern,omitempty" example:"solid" doc:"Applied pattern"`
	Temporary      bool   `json:"temporary" doc:"True when the session rewrites this LED on its next state change"`
	SessionPattern string `json:"session_pattern,omitempty" example:"blink" doc:"Pattern the session shows on this LED"`
}

type LEDOverrideResponse struct {
	Body LEDOverride
}

type LEDCapabilities struct {
	AvailableTypes    []string `json:"available_types" doc:"LED types on this board"`
	AvailablePatterns []string `json:"available_patterns" doc:"LED patterns on this board"`
	StatusLED         string   `json:"status_led,omitempty" example:"system" doc:"LED that follows the session state"`
}

type LEDCapabilitiesResponse struct {
	Body LEDCapabilities
}

// registerLEDRoutes registers LED control endpoints when the board has LEDs.
func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Override an LED",
		Description: "Set an LED directly. The status LED returns to the session pattern on the next state change.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *LEDRequest) (*LEDOverrideResponse, error) {
		override := LEDOverride{Type: input.Body.Type, Enabled: input.Body.Enabled}
		if input.Body.Pattern != nil {
			override.Pattern = *input.Body.Pattern
		}
		if err := ctrl.Set(override.Type, override.Enabled, override.Pattern); err != nil {
			return nil, huma.Error400BadRequest("Failed to control LED", err)
		}
		if s.options.LEDStatus != nil {
			if ledType, pattern := s.options.LEDStatus.StatusLED(); ledType == override.Type {
				override.Temporary = true
				override.SessionPattern = pattern
			}
		}
		return &LEDOverrideResponse{Body: override}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "Get LED capabilities",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*LEDCapabilitiesResponse, error) {
		caps := LEDCapabilities{
			AvailableTypes:    ctrl.Available(),
			AvailablePatterns: ctrl.Patterns(),
		}
		if s.options.LEDStatus != nil {
			caps.StatusLED, _ = s.options.LEDStatus.StatusLED()
		}
		return &LEDCapabilitiesResponse{Body: caps}, nil
	})

	s.logger.Info("LED routes registered")
}
