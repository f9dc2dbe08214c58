// Package metrics exposes Prometheus counters for broadcasts, schedules and
// the wizard. Most values are fed from the event bus so the posting path
// carries no metrics code.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"postbot/internal/eventbus"
)

const namespace = "postbot"

type Metrics struct {
	Broadcasts        *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	BroadcastSeconds  *prometheus.HistogramVec
	ScheduleRuns      *prometheus.CounterVec
	ScheduleSeconds   prometheus.Histogram
	SchedulesActive   *prometheus.GaugeVec
	ChannelsActive    *prometheus.GaugeVec
	WizardTransitions *prometheus.CounterVec
	ConfigReloads     prometheus.Counter
	EventsDropped     prometheus.CounterFunc
}

// New builds the collectors and registers them on reg. bus may be nil.
func New(reg prometheus.Registerer, bus eventbus.Bus) *Metrics {
	m := &Metrics{
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Finished broadcasts by trigger.",
		}, []string{"trigger"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-channel delivery results; result is ok or a failure category.",
		}, []string{"result"}),
		BroadcastSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_duration_seconds",
			Help:      "Wall time of one broadcast including inter-send delays.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"trigger"}),
		ScheduleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_runs_total",
			Help:      "Scheduled runs by status.",
		}, []string{"status"}),
		ScheduleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_run_duration_seconds",
			Help:      "Wall time of one scheduled run.",
			Buckets:   prometheus.DefBuckets,
		}),
		SchedulesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedules",
			Help:      "Registered schedules per owner.",
		}, []string{"owner"}),
		ChannelsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Registered channels per owner.",
		}, []string{"owner"}),
		WizardTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transitions_total",
			Help:      "Wizard step changes.",
		}, []string{"from", "to"}),
		ConfigReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied config reloads.",
		}),
	}
	m.EventsDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Bus events missed by slow subscribers.",
	}, func() float64 { return float64(eventbus.Dropped(bus)) })

	if reg != nil {
		reg.MustRegister(
			m.Broadcasts,
			m.Deliveries,
			m.BroadcastSeconds,
			m.ScheduleRuns,
			m.ScheduleSeconds,
			m.SchedulesActive,
			m.ChannelsActive,
			m.WizardTransitions,
			m.ConfigReloads,
			m.EventsDropped,
		)
	}
	return m
}

// WizardTransition counts one step change; "" is rendered as idle.
func (m *Metrics) WizardTransition(from, to string) {
	m.WizardTransitions.WithLabelValues(stepLabel(from), stepLabel(to)).Inc()
}

func stepLabel(s string) string {
	if s == "" {
		return "idle"
	}
	return s
}

// Consume applies bus events until ctx is done or the subscription closes.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}

// Observe applies a single event.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case eventbus.BroadcastCompleted:
		m.Broadcasts.WithLabelValues(d.Trigger).Inc()
		m.BroadcastSeconds.WithLabelValues(d.Trigger).Observe(d.Duration.Seconds())
		if d.Succeeded > 0 {
			m.Deliveries.WithLabelValues("ok").Add(float64(d.Succeeded))
		}
		for cat, n := range d.Failed {
			m.Deliveries.WithLabelValues(cat).Add(float64(n))
		}
	case eventbus.ScheduleRun:
		status := "ok"
		if d.Err != nil {
			status = "error"
		}
		m.ScheduleRuns.WithLabelValues(status).Inc()
		m.ScheduleSeconds.Observe(d.Duration.Seconds())
	case eventbus.Counted:
		owner := formatOwner(d.Owner)
		switch ev.Type {
		case eventbus.TopicScheduleChanged:
			m.SchedulesActive.WithLabelValues(owner).Set(float64(d.Total))
		case eventbus.TopicChannelChanged:
			m.ChannelsActive.WithLabelValues(owner).Set(float64(d.Total))
		}
	default:
		if ev.Type == eventbus.TopicConfigReloaded {
			m.ConfigReloads.Inc()
		}
	}
}

func formatOwner(id int64) string { return strconv.FormatInt(id, 10) }
