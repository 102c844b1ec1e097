package payments

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Initiated prometheus.Counter
	Callbacks *prometheus.CounterVec
	Awaits    *prometheus.CounterVec
	Expired   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Initiated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glam_payments_initiated_total",
			Help: "Sadad checkouts started.",
		}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glam_payment_callbacks_total",
			Help: "Sadad callbacks by result.",
		}, []string{"result"}),
		Awaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glam_payment_awaits_total",
			Help: "Completed status polls by outcome.",
		}, []string{"outcome"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glam_payments_expired_total",
			Help: "Pending transactions failed by the expiry sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Initiated, m.Callbacks, m.Awaits, m.Expired)
	}
	return m
}
