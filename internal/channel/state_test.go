package channel

import "testing"

func TestMachine_ReconnectSchedule(t *testing.T) {
	m := newMachine(5)
	if m.state != StateIdle {
		t.Fatalf("initial state = %v, want idle", m.state)
	}

	m.connecting()
	m.connected()

	for want := 1; want <= 5; want++ {
		attempt, retry := m.lost()
		if !retry {
			t.Fatalf("lost() gave up at attempt %d", want)
		}
		if attempt != want {
			t.Errorf("attempt = %d, want %d", attempt, want)
		}
		if m.state != StateReconnecting {
			t.Errorf("state = %v, want reconnecting", m.state)
		}
	}

	attempt, retry := m.lost()
	if retry {
		t.Fatal("lost() retried past the limit")
	}
	if attempt != 5 {
		t.Errorf("final attempt = %d, want 5", attempt)
	}
	if m.state != StateFailed {
		t.Errorf("state = %v, want failed", m.state)
	}

	// Further losses stay failed.
	if _, retry := m.lost(); retry {
		t.Error("failed machine retried")
	}
}

func TestMachine_SuccessResetsCounter(t *testing.T) {
	m := newMachine(2)
	m.connecting()
	m.connected()
	m.lost()
	m.lost()
	m.connected()

	attempt, retry := m.lost()
	if !retry || attempt != 1 {
		t.Errorf("after reconnect lost() = %d, %v, want 1, true", attempt, retry)
	}
}

func TestMachine_ConnectResetsFailed(t *testing.T) {
	m := newMachine(1)
	m.lost()
	m.lost()
	if m.state != StateFailed {
		t.Fatalf("state = %v, want failed", m.state)
	}

	m.connecting()
	if m.state != StateConnecting || m.attempt != 0 {
		t.Errorf("after connecting: state = %v attempt = %d", m.state, m.attempt)
	}
}

func TestMachine_NormalClose(t *testing.T) {
	m := newMachine(3)
	m.connecting()
	m.connected()
	m.lost()
	m.closedNormally()

	if m.state != StateIdle || m.attempt != 0 {
		t.Errorf("after normal close: state = %v attempt = %d", m.state, m.attempt)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateFailed:       "failed",
		State(42):         "State(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
