package channel

import "fmt"

// State is the connection state of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// machine is the reconnect state machine:
//
//	Idle -> Connecting -> Connected -> Reconnecting(1..max) -> Failed
//
// A normal close returns to Idle. Connect from any state restarts at Connecting
// with the attempt counter cleared.
type machine struct {
	state   State
	attempt int
	max     int
}

func newMachine(maxAttempts int) *machine {
	return &machine{state: StateIdle, max: maxAttempts}
}

// connecting records an explicit Connect.
func (m *machine) connecting() {
	m.state = StateConnecting
	m.attempt = 0
}

// connected records a successful dial and resets the attempt counter.
func (m *machine) connected() {
	m.state = StateConnected
	m.attempt = 0
}

// closedNormally records a normal close or local shutdown.
func (m *machine) closedNormally() {
	m.state = StateIdle
	m.attempt = 0
}

// lost records an abnormal close or failed dial. It returns the next attempt
// number, or false once attempts are exhausted and the machine has failed.
func (m *machine) lost() (attempt int, retry bool) {
	if m.attempt >= m.max {
		m.state = StateFailed
		return m.attempt, false
	}
	m.attempt++
	m.state = StateReconnecting
	return m.attempt, true
}
