package round

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// arm replaces the room's phase timer with a one-shot timer that runs fn under the room
// guard after d. Arming bumps the phase generation, so a timer that fires after its phase
// was closed finds a newer generation and does nothing.
func (m *Machine) arm(d time.Duration, fn func()) {
	m.disarm()
	gen := m.gen

	if d < 0 {
		d = 0
	}
	deadline := m.deps.Clock.Now().Add(d)
	m.deadline = &deadline

	timer := m.deps.Clock.NewTimer(d)
	stop := make(chan struct{})
	m.timer, m.timerStop = timer, stop

	go func(t clockwork.Timer) {
		select {
		case <-t.Chan():
			m.guard.Lock()
			defer m.guard.Unlock()
			if m.gen != gen || m.stopped {
				log.Debug().
					Str("room_code", m.state.Room.Code).
					Uint64("generation", gen).
					Msg("stale phase timer ignored")
				return
			}
			m.timer, m.timerStop = nil, nil
			fn()
		case <-stop:
		}
	}(timer)

	log.Debug().
		Str("room_code", m.state.Room.Code).
		Uint64("generation", gen).
		Dur("duration", d).
		Msg("armed phase timer")
}

// disarm closes the current phase generation and cancels its timer, if any.
func (m *Machine) disarm() {
	m.gen++
	m.deadline = nil
	if m.timer != nil {
		stopAndDrainTimer(m.timer)
		close(m.timerStop)
		m.timer, m.timerStop = nil, nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
