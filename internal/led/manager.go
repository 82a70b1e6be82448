package led

import (
	"sync"

	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/logging"
)

// patternFor maps a session state to the status LED pattern.
var patternFor = map[string]string{
	"scanning":   PatternBlink,
	"connecting": PatternHeartbeat,
	"active":     PatternSolid,
}

// Manager follows session state events and shows them on one LED.
type Manager struct {
	controller Controller
	ledType    string
	eventBus   *events.Bus
	logger     logging.Logger

	mu          sync.Mutex
	unsubscribe func()
	last        string
}

// NewManager creates a manager that drives ledType on controller.
func NewManager(controller Controller, ledType string, eventBus *events.Bus, logger logging.Logger) *Manager {
	return &Manager{
		controller: controller,
		ledType:    ledType,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start subscribes to session state changes and shows scanning until the
// first one arrives.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.eventBus.Subscribe(func(e events.SessionStateChangedEvent) {
		m.handleEvent(e)
	})
	m.apply("scanning")
	m.logger.Info("LED manager started", "led", m.ledType)
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil {
		return
	}
	m.unsubscribe()
	m.unsubscribe = nil
	if err := m.controller.Set(m.ledType, false, ""); err != nil {
		m.logger.Warn("Failed to switch LED off", "error", err)
	}
	m.last = ""
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleEvent(e events.SessionStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil {
		return
	}
	m.apply(e.State)
}

func (m *Manager) apply(state string) {
	pattern, ok := patternFor[state]
	if !ok {
		m.logger.Debug("Ignoring unknown session state", "state", state)
		return
	}
	if pattern == m.last {
		return
	}
	if err := m.controller.Set(m.ledType, true, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "state", state, "pattern", pattern, "error", err)
		return
	}
	m.last = pattern
	m.logger.Debug("Status LED updated", "state", state, "pattern", pattern)
}

// StatusLED returns the LED the manager drives and the pattern it last
// set for the session. The pattern is empty before Start and after Stop.
func (m *Manager) StatusLED() (ledType, pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledType, m.last
}

// Controller returns the underlying LED controller for direct API access.
func (m *Manager) Controller() Controller {
	return m.controller
}
