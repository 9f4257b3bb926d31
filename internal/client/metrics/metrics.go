// Package metrics records session-core events. The portal exposes the
// prometheus implementation on /metrics; everything else defaults to Nop.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder interface {
	BootstrapFinished(status, method string, elapsed time.Duration)
	RecoveryStep(step string, ok bool)
	Refresh(ok bool)
	RequestRetried(transport string)
	RedirectCapped()
}

type Nop struct{}

func (Nop) BootstrapFinished(string, string, time.Duration) {}
func (Nop) RecoveryStep(string, bool)                       {}
func (Nop) Refresh(bool)                                    {}
func (Nop) RequestRetried(string)                           {}
func (Nop) RedirectCapped()                                 {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

type Prometheus struct {
	bootstraps   *prometheus.CounterVec
	bootstrapDur prometheus.Histogram
	recovery     *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	redirectCaps prometheus.Counter
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkeeper",
			Name:      "bootstrap_total",
			Help:      "Bootstrap runs by terminal status and recovery method.",
		}, []string{"status", "method"}),
		bootstrapDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessionkeeper",
			Name:      "bootstrap_duration_seconds",
			Help:      "Time from mount to terminal status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 10, 12},
		}),
		recovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkeeper",
			Name:      "recovery_steps_total",
			Help:      "Recovery chain steps by outcome.",
		}, []string{"step", "ok"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkeeper",
			Name:      "refresh_total",
			Help:      "Session refresh attempts by outcome.",
		}, []string{"ok"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkeeper",
			Name:      "request_retries_total",
			Help:      "Requests replayed once after an authorization error.",
		}, []string{"transport"}),
		redirectCaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionkeeper",
			Name:      "redirect_cap_reached_total",
			Help:      "Login redirects suppressed by the per-process cap.",
		}),
	}

	for _, c := range []prometheus.Collector{p.bootstraps, p.bootstrapDur, p.recovery, p.refreshes, p.retries, p.redirectCaps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) BootstrapFinished(status, method string, elapsed time.Duration) {
	p.bootstraps.WithLabelValues(status, method).Inc()
	p.bootstrapDur.Observe(elapsed.Seconds())
}

func (p *Prometheus) RecoveryStep(step string, ok bool) {
	p.recovery.WithLabelValues(step, strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) Refresh(ok bool) {
	p.refreshes.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) RequestRetried(transport string) {
	p.retries.WithLabelValues(transport).Inc()
}

func (p *Prometheus) RedirectCapped() {
	p.redirectCaps.Inc()
}
