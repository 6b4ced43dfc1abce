package connectivity

import "testing"

func TestReconnectEdgeDetection(t *testing.T) {
	m := NewMonitor(false, nil)

	fired := 0
	m.OnReconnect(func() { fired++ })

	m.SetOnline(false) // already offline, no edge
	if fired != 0 {
		t.Fatalf("callback fired on offline->offline")
	}

	m.SetOnline(true)
	if fired != 1 {
		t.Fatalf("fired = %d after reconnect, want 1", fired)
	}

	m.SetOnline(true) // repeated online report, no edge
	if fired != 1 {
		t.Fatalf("callback fired on online->online")
	}

	m.SetOnline(false)
	if fired != 1 {
		t.Fatalf("callback fired on online->offline")
	}

	m.SetOnline(true)
	if fired != 2 {
		t.Fatalf("fired = %d after second reconnect, want 2", fired)
	}
}

func TestOnChangeFiresOnEveryEdge(t *testing.T) {
	m := NewMonitor(true, nil)

	var states []bool
	m.OnChange(func(online bool) { states = append(states, online) })

	m.SetOnline(true) // no edge
	m.SetOnline(false)
	m.SetOnline(false) // no edge
	m.SetOnline(true)
	m.SetOnline(false)

	want := []bool{false, true, false}
	if len(states) != len(want) {
		t.Fatalf("observer fired %d times, want %d", len(states), len(want))
	}
	for i, s := range states {
		if s != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, s, want[i])
		}
	}
}

func TestOnlineState(t *testing.T) {
	m := NewMonitor(true, nil)
	if !m.Online() {
		t.Error("monitor should start online")
	}
	m.SetOnline(false)
	if m.Online() {
		t.Error("monitor should be offline after SetOnline(false)")
	}
}
