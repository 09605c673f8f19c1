package hublifetime

import (
	"github.com/prometheus/client_golang/prometheus"
)

type managerMetrics struct {
	connections prometheus.GaugeFunc
	groups      prometheus.GaugeFunc
	users       prometheus.GaugeFunc
	broadcasts  *prometheus.CounterVec
	handOffs    prometheus.Counter
	dropped     prometheus.Counter
	aborted     prometheus.Counter
}

func newManagerMetrics(hubName string, connections, groups, users func() float64) *managerMetrics {
	labels := prometheus.Labels{"hub": hubName}
	return &managerMetrics{
		connections: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hublifetime",
			Name:        "connections",
			Help:        "Number of registered connections.",
			ConstLabels: labels,
		}, connections),
		groups: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hublifetime",
			Name:        "groups",
			Help:        "Number of groups with at least one member.",
			ConstLabels: labels,
		}, groups),
		users: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hublifetime",
			Name:        "users",
			Help:        "Number of users with at least one connection.",
			ConstLabels: labels,
		}, users),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hublifetime",
			Name:        "broadcasts_total",
			Help:        "Number of send operations by target selector.",
			ConstLabels: labels,
		}, []string{"selector"}),
		handOffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hublifetime",
			Name:        "hand_offs_total",
			Help:        "Number of messages handed off to connection send paths.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hublifetime",
			Name:        "dropped_total",
			Help:        "Number of messages not handed off because the connection was slow or gone.",
			ConstLabels: labels,
		}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hublifetime",
			Name:        "aborted_connections_total",
			Help:        "Number of connections aborted by transport failures, slow consumption or the hub.",
			ConstLabels: labels,
		}),
	}
}

func (m *managerMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.connections, m.groups, m.users, m.broadcasts, m.handOffs, m.dropped, m.aborted}
}

func (m *managerMetrics) register(registerer prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *managerMetrics) unregister(registerer prometheus.Registerer) {
	for _, c := range m.collectors() {
		registerer.Unregister(c)
	}
}
