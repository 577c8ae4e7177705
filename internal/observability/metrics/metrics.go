package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the slot/payment workflow. All
// observe methods are nil-safe so services can run without a registry.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	paymentsTotal     *prometheus.CounterVec
	confirmsTotal     *prometheus.CounterVec
	sweepReclaimed    prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "slots",
			Name:      "reservations_total",
			Help:      "Reserve attempts by outcome",
		}, []string{"outcome"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "intents_total",
			Help:      "Payment intents created, by rail",
		}, []string{"rail"}),
		confirmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "confirms_total",
			Help:      "Payment confirmations by rail and outcome",
		}, []string{"rail", "outcome"}),
		sweepReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "slots",
			Name:      "sweep_reclaimed_total",
			Help:      "Slots returned to the available pool by the sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.paymentsTotal, m.confirmsTotal, m.sweepReclaimed)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObservePaymentIntent(rail string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(rail).Inc()
}

func (m *BookingMetrics) ObserveConfirm(rail, outcome string) {
	if m == nil {
		return
	}
	m.confirmsTotal.WithLabelValues(rail, outcome).Inc()
}

func (m *BookingMetrics) ObserveSweepReclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepReclaimed.Add(float64(n))
}
