package gwmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	if m.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}
	if m.HandshakesComplete == nil {
		t.Error("HandshakesComplete is nil")
	}
	if m.BankNodes == nil {
		t.Error("BankNodes is nil")
	}
}

func TestStateTransitionsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.StateTransitions.WithLabelValues("SETTINGS_EXCHANGED").Inc()
	m.StateTransitions.WithLabelValues("SETTINGS_EXCHANGED").Inc()
	m.StateTransitions.WithLabelValues("ESTABLISHED").Inc()

	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("SETTINGS_EXCHANGED")); got != 2 {
		t.Errorf("StateTransitions[SETTINGS_EXCHANGED] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("ESTABLISHED")); got != 1 {
		t.Errorf("StateTransitions[ESTABLISHED] = %v, want 1", got)
	}
}

func TestHandshakeCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.HandshakesComplete.Inc()
	m.HandshakesComplete.Inc()
	m.SignatureFailures.WithLabelValues("primary").Inc()

	if got := testutil.ToFloat64(m.HandshakesComplete); got != 2 {
		t.Errorf("HandshakesComplete = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SignatureFailures.WithLabelValues("primary")); got != 1 {
		t.Errorf("SignatureFailures[primary] = %v, want 1", got)
	}
}

func TestBankGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.BankNodes.Set(4)
	m.BankNodes.Inc()
	m.BankMerges.Inc()

	if got := testutil.ToFloat64(m.BankNodes); got != 5 {
		t.Errorf("BankNodes = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.BankMerges); got != 1 {
		t.Errorf("BankMerges = %v, want 1", got)
	}
}

func TestMessageCountersByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.MessagesSent.WithLabelValues("PING").Inc()
	m.MessagesSent.WithLabelValues("PING").Inc()
	m.MessagesReceived.WithLabelValues("FORWARD").Inc()

	if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues("PING")); got != 2 {
		t.Errorf("MessagesSent[PING] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceived.WithLabelValues("FORWARD")); got != 1 {
		t.Errorf("MessagesReceived[FORWARD] = %v, want 1", got)
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return the same instance on repeated calls")
	}
	if m1 == nil {
		t.Error("Default() returned nil")
	}
}
