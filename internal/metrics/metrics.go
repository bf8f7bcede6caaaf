package metrics

import (
	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the auth gate.
// Tracks screens served, automatic sign-ins and token loads.
type Metrics struct {
	ScreenTransitions *prometheus.CounterVec
	AutoSignins       *prometheus.CounterVec
	TokensLoaded      prometheus.Counter

	reg prometheus.Registerer
}

// New registers the gate metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScreenTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_gate_screen_transitions_total",
			Help: "Total number of times a session entered a gate screen",
		}, []string{"screen"}),
		AutoSignins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_gate_auto_signins_total",
			Help: "Total number of automatic sign-in redirects, by result",
		}, []string{"result"}),
		TokensLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "admin_gate_tokens_loaded_total",
			Help: "Total number of token sets loaded (sign-in and silent renewal)",
		}),
		reg: reg,
	}
}

// ScreenEntered implements gate.Observer.
func (m *Metrics) ScreenEntered(screen gate.Screen) {
	m.ScreenTransitions.WithLabelValues(screen.String()).Inc()
}

// AutoSignin implements gate.Observer.
func (m *Metrics) AutoSignin(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AutoSignins.WithLabelValues(result).Inc()
}

// UserLoaded counts a loaded token set.
func (m *Metrics) UserLoaded(_ string, _ *auth.RawUser) {
	m.TokensLoaded.Inc()
}

// TrackActiveSessions exposes count as the number of live gate sessions.
func (m *Metrics) TrackActiveSessions(count func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "admin_gate_active_sessions",
		Help: "Number of sessions with a live identity client and gate",
	}, func() float64 {
		return float64(count())
	})
}
