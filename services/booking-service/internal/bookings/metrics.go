package bookings

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Created     prometheus.Counter
	Transitions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glam_bookings_created_total",
			Help: "Bookings created.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glam_booking_transitions_total",
			Help: "Booking status transitions by target status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Created, m.Transitions)
	}
	return m
}
