package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opendeckmcp/pkg/device"
)

type MetricsConfig struct {
	Namespace   string
	SubSession  string
	SubQueue    string
	TickSession time.Duration
	TickQueue   time.Duration
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:   "opendeck",
		SubSession:  "session",
		SubQueue:    "queue",
		TickSession: 100 * time.Millisecond,
		TickQueue:   100 * time.Millisecond,
	}
}

type Metrics struct {
	reg    prometheus.Registerer
	lock   sync.Mutex
	config *MetricsConfig

	// session
	sessionState             *prometheus.GaugeVec
	sessionConnects          *prometheus.GaugeVec
	sessionConnectFailures   *prometheus.GaugeVec
	sessionHandshakeAttempts *prometheus.GaugeVec
	sessionDisconnects       *prometheus.GaugeVec
	sessionStepFailures      *prometheus.GaugeVec

	// queue
	queueSent            *prometheus.GaugeVec
	queueReplies         *prometheus.GaugeVec
	queueTimeouts        *prometheus.GaugeVec
	queueDeviceErrors    *prometheus.GaugeVec
	queueWriteErrors     *prometheus.GaugeVec
	queueResets          *prometheus.GaugeVec
	queueFramesIn        *prometheus.GaugeVec
	queueFramesDiscarded *prometheus.GaugeVec
	queuePending         *prometheus.GaugeVec
	queueInFlight        *prometheus.GaugeVec

	cancelfns map[string]context.CancelFunc
}

func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	gauge := func(subsystem, name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: subsystem, Name: name, Help: help}, []string{"device"})
	}

	met := &Metrics{
		config: config,
		reg:    reg,

		sessionState:             gauge(config.SubSession, "state", "Session state (0 closed, 1 pending, 2 open)"),
		sessionConnects:          gauge(config.SubSession, "connects", "Connect attempts"),
		sessionConnectFailures:   gauge(config.SubSession, "connect_failures", "Failed connect attempts"),
		sessionHandshakeAttempts: gauge(config.SubSession, "handshake_attempts", "Handshakes sent while matching ports"),
		sessionDisconnects:       gauge(config.SubSession, "disconnects", "Sessions closed by transport loss"),
		sessionStepFailures:      gauge(config.SubSession, "step_failures", "Connect probes that fell back to defaults"),

		queueSent:            gauge(config.SubQueue, "sent", "Requests written"),
		queueReplies:         gauge(config.SubQueue, "replies", "Correlated replies"),
		queueTimeouts:        gauge(config.SubQueue, "timeouts", "Requests timed out"),
		queueDeviceErrors:    gauge(config.SubQueue, "device_errors", "Replies with an error status"),
		queueWriteErrors:     gauge(config.SubQueue, "write_errors", "Failed output writes"),
		queueResets:          gauge(config.SubQueue, "resets", "Queue resets"),
		queueFramesIn:        gauge(config.SubQueue, "frames_in", "Frames received"),
		queueFramesDiscarded: gauge(config.SubQueue, "frames_discarded", "Frames not matching the request in flight"),
		queuePending:         gauge(config.SubQueue, "pending", "Requests waiting to be sent"),
		queueInFlight:        gauge(config.SubQueue, "in_flight", "Request awaiting a reply"),

		cancelfns: make(map[string]context.CancelFunc),
	}

	reg.MustRegister(
		met.sessionState,
		met.sessionConnects,
		met.sessionConnectFailures,
		met.sessionHandshakeAttempts,
		met.sessionDisconnects,
		met.sessionStepFailures)

	reg.MustRegister(
		met.queueSent,
		met.queueReplies,
		met.queueTimeouts,
		met.queueDeviceErrors,
		met.queueWriteErrors,
		met.queueResets,
		met.queueFramesIn,
		met.queueFramesDiscarded,
		met.queuePending,
		met.queueInFlight)

	return met
}

func (m *Metrics) remove(subsystem string, name string) {
	m.lock.Lock()
	cancelfn, ok := m.cancelfns[fmt.Sprintf("%s_%s", subsystem, name)]
	if ok {
		cancelfn()
		delete(m.cancelfns, fmt.Sprintf("%s_%s", subsystem, name))
	}
	m.lock.Unlock()
}

func (m *Metrics) add(subsystem string, name string, interval time.Duration, tickfn func()) {
	ctx, cancelfn := context.WithCancel(context.TODO())
	m.lock.Lock()
	m.cancelfns[fmt.Sprintf("%s_%s", subsystem, name)] = cancelfn
	m.lock.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickfn()
			}
		}
	}()
}

// Shutdown everything
func (m *Metrics) Shutdown() {
	m.lock.Lock()
	for _, cancelfn := range m.cancelfns {
		cancelfn()
	}
	m.cancelfns = make(map[string]context.CancelFunc)
	m.lock.Unlock()
}

func (m *Metrics) AddClient(name string, client *device.Client) {
	m.add(m.config.SubSession, name, m.config.TickSession, func() {
		met := client.GetMetrics()
		m.sessionState.WithLabelValues(name).Set(float64(met.State))
		m.sessionConnects.WithLabelValues(name).Set(float64(met.Connects))
		m.sessionConnectFailures.WithLabelValues(name).Set(float64(met.ConnectFailures))
		m.sessionHandshakeAttempts.WithLabelValues(name).Set(float64(met.HandshakeAttempts))
		m.sessionDisconnects.WithLabelValues(name).Set(float64(met.Disconnects))
		m.sessionStepFailures.WithLabelValues(name).Set(float64(met.StepFailures))
	})

	// The queue is replaced on every connect, so its counters restart with
	// each session.
	m.add(m.config.SubQueue, name, m.config.TickQueue, func() {
		met := client.QueueMetrics()
		if met != nil {
			inFlight := 0.0
			if met.InFlight {
				inFlight = 1
			}
			m.queueSent.WithLabelValues(name).Set(float64(met.Sent))
			m.queueReplies.WithLabelValues(name).Set(float64(met.Replies))
			m.queueTimeouts.WithLabelValues(name).Set(float64(met.Timeouts))
			m.queueDeviceErrors.WithLabelValues(name).Set(float64(met.DeviceErrors))
			m.queueWriteErrors.WithLabelValues(name).Set(float64(met.WriteErrors))
			m.queueResets.WithLabelValues(name).Set(float64(met.Resets))
			m.queueFramesIn.WithLabelValues(name).Set(float64(met.FramesIn))
			m.queueFramesDiscarded.WithLabelValues(name).Set(float64(met.FramesDiscarded))
			m.queuePending.WithLabelValues(name).Set(float64(met.Pending))
			m.queueInFlight.WithLabelValues(name).Set(inFlight)
		}
	})
}

func (m *Metrics) RemoveClient(name string) {
	m.remove(m.config.SubSession, name)
	m.remove(m.config.SubQueue, name)
}
