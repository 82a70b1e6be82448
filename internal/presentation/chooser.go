package presentation

import (
	"errors"
	"sync"

	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/session"
)

var (
	// ErrNoPendingChoice is returned by Pick when nothing is waiting.
	ErrNoPendingChoice = errors.New("no device choice pending")
	// ErrUnknownCandidate is returned by Pick for an id not on offer.
	ErrUnknownCandidate = errors.New("device is not a candidate")
)

// AutoChooser takes the first candidate.
type AutoChooser struct{}

func (AutoChooser) Present(candidates []devices.Handle, choose func(devices.Handle)) {
	if len(candidates) > 0 {
		choose(candidates[0])
	}
}

// PendingChooser holds candidates until a remote client picks one.
type PendingChooser struct {
	bus *events.Bus

	mu         sync.Mutex
	candidates []devices.Handle
	choose     func(devices.Handle)
}

// NewPendingChooser returns a chooser that announces candidates on bus.
// bus may be nil.
func NewPendingChooser(bus *events.Bus) *PendingChooser {
	return &PendingChooser{bus: bus}
}

// Present replaces any earlier offer.
func (p *PendingChooser) Present(candidates []devices.Handle, choose func(devices.Handle)) {
	p.mu.Lock()
	p.candidates = append([]devices.Handle(nil), candidates...)
	p.choose = choose
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish(events.CandidatesPresentedEvent{
			Candidates: append([]devices.Handle(nil), candidates...),
			Timestamp:  events.Now(),
		})
	}
}

// Candidates returns the devices on offer.
func (p *PendingChooser) Candidates() []devices.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]devices.Handle(nil), p.candidates...)
}

// Pick resolves the offer with the candidate uniqueID.
func (p *PendingChooser) Pick(uniqueID string) (devices.Handle, error) {
	p.mu.Lock()
	if p.choose == nil {
		p.mu.Unlock()
		return devices.Handle{}, ErrNoPendingChoice
	}
	h, ok := devices.Find(p.candidates, uniqueID)
	if !ok {
		p.mu.Unlock()
		return devices.Handle{}, ErrUnknownCandidate
	}
	choose := p.choose
	p.candidates, p.choose = nil, nil
	p.mu.Unlock()

	choose(h)
	return h, nil
}

// StateChanged withdraws the offer once the session connects.
func (p *PendingChooser) StateChanged(u session.Update) {
	if u.State == session.StateScanning {
		return
	}
	p.mu.Lock()
	p.candidates, p.choose = nil, nil
	p.mu.Unlock()
}
