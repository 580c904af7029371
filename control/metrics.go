// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics shared by loop runtimes, bridges and the dispatch queue.
// Every recording method is safe on a nil *Metrics.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hioload_pw"

// Metrics holds the collectors of one process.
type Metrics struct {
	EventsPosted    *prometheus.CounterVec
	EventsDrained   *prometheus.CounterVec
	LoopsLive       prometheus.Gauge
	IterationFaults prometheus.Counter
	FormatsRejected prometheus.Counter
	FramesSkipped   *prometheus.CounterVec
	Frames          prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		EventsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_posted_total",
			Help:      "Deferred events posted by loop workers.",
		}, []string{"kind"}),
		EventsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_drained_total",
			Help:      "Deferred events delivered on the host.",
		}, []string{"kind"}),
		LoopsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loops_live",
			Help:      "Loop runtimes created and not yet closed.",
		}),
		IterationFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iteration_faults_total",
			Help:      "Loop workers terminated by an iteration error.",
		}),
		FormatsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_formats_rejected_total",
			Help:      "Format proposals ignored because they fall outside the requested envelope.",
		}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_skipped_total",
			Help:      "Process callbacks that produced no frame.",
		}, []string{"reason"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Frames handed to a consumer or the event queue.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.EventsPosted, m.EventsDrained, m.LoopsLive, m.IterationFaults,
			m.FormatsRejected, m.FramesSkipped, m.Frames,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) EventPosted(kind string) {
	if m != nil {
		m.EventsPosted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) EventDrained(kind string) {
	if m != nil {
		m.EventsDrained.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) LoopOpened() {
	if m != nil {
		m.LoopsLive.Inc()
	}
}

func (m *Metrics) LoopClosed() {
	if m != nil {
		m.LoopsLive.Dec()
	}
}

func (m *Metrics) IterationFault() {
	if m != nil {
		m.IterationFaults.Inc()
	}
}

func (m *Metrics) FormatRejected() {
	if m != nil {
		m.FormatsRejected.Inc()
	}
}

func (m *Metrics) FrameSkipped(reason string) {
	if m != nil {
		m.FramesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Frame() {
	if m != nil {
		m.Frames.Inc()
	}
}
