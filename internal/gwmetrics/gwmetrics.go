// Package gwmetrics provides Prometheus metrics for the gateway state
// machine, the RSA keypair, and the key bank.
package gwmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cryptogateway"

// Metrics holds every Prometheus collector the library populates.
type Metrics struct {
	// Handshake / state machine metrics
	StateTransitions   *prometheus.CounterVec
	HandshakesComplete prometheus.Counter
	HandshakeLatency   prometheus.Histogram
	SignatureFailures  *prometheus.CounterVec
	DecryptFailures    prometheus.Counter

	// Stream traffic metrics
	BytesEncrypted   prometheus.Counter
	BytesDecrypted   prometheus.Counter
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec

	// RSA keypair metrics
	KeyRotations   prometheus.Counter
	KeyGenFailures prometheus.Counter
	KeyGenLatency  prometheus.Histogram

	// Key bank metrics
	BankNodes  prometheus.Gauge
	BankMerges prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide default metrics instance, registered
// against prometheus.DefaultRegisterer on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance against a caller-supplied
// registry, for tests or multi-instance processes.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total gateway state machine transitions by destination state",
		}, []string{"state"}),
		HandshakesComplete: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_established_total",
			Help:      "Total handshakes that reached ESTABLISHED",
		}),
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Time from first PING to ESTABLISHED",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		SignatureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_failures_total",
			Help:      "Total SIGNING_MESSAGE verification failures by kind",
		}, []string{"kind"}),
		DecryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Total SECURE_DATA_EXCHANGE decrypt/sync-tag failures",
		}),

		BytesEncrypted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_encrypted_total",
			Help:      "Total plaintext bytes wrapped by the outbound stream cipher",
		}),
		BytesDecrypted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_decrypted_total",
			Help:      "Total plaintext bytes recovered by the inbound stream cipher",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total messages emitted by type",
		}, []string{"type"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total messages processed by type",
		}, []string{"type"}),

		KeyRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Total RSA keypair rotations",
		}),
		KeyGenFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_generation_failures_total",
			Help:      "Total failed background key generation attempts",
		}),
		KeyGenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "key_generation_latency_seconds",
			Help:      "Histogram of background RSA key generation latency",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		BankNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bank_nodes",
			Help:      "Current number of distinct nodes in the key bank",
		}),
		BankMerges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_merges_total",
			Help:      "Total key bank node merges",
		}),
	}
}
