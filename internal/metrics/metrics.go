// Package metrics expone contadores Prometheus del ciclo de vida de sesiones.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionRecorder es lo que el gestor de sesiones reporta.
type SessionRecorder interface {
	RecordSignUp(ok bool)
	RecordSignIn(ok bool)
	RecordValidation(outcome string)
	RecordSignOut()
	RecordCleanup(deleted, failed int)
	RecordRemoteLatency(op string, d time.Duration)
}

// ProviderRecorder es lo que el proveedor de identidad reporta.
type ProviderRecorder interface {
	RecordAccountCreated()
	RecordProviderSession(ok bool)
	RecordProviderSessionDeleted()
}

// Collector implementa ambos recorders sobre un registro Prometheus.
type Collector struct {
	signUps        *prometheus.CounterVec
	signIns        *prometheus.CounterVec
	validations    *prometheus.CounterVec
	signOuts       prometheus.Counter
	cleanupDeleted prometheus.Counter
	cleanupFailed  prometheus.Counter
	remoteLatency  *prometheus.HistogramVec

	accountsCreated  prometheus.Counter
	providerSessions *prometheus.CounterVec
	providerDeleted  prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviebox_signup_total",
			Help: "Sign-up attempts by result.",
		}, []string{"result"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviebox_signin_total",
			Help: "Sign-in attempts by result.",
		}, []string{"result"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviebox_session_validation_total",
			Help: "Session validations by outcome.",
		}, []string{"outcome"}),
		signOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moviebox_signout_total",
			Help: "Local sign-outs, explicit or forced.",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moviebox_session_cleanup_deleted_total",
			Help: "Expired session records purged.",
		}),
		cleanupFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moviebox_session_cleanup_failed_total",
			Help: "Expired session records that could not be purged.",
		}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moviebox_remote_call_seconds",
			Help:    "Latency of remote calls issued by the session manager.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		accountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_accounts_created_total",
			Help: "Accounts created by the identity provider.",
		}),
		providerSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_sessions_total",
			Help: "Provider session creation attempts by result.",
		}, []string{"result"}),
		providerDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_sessions_deleted_total",
			Help: "Provider sessions deleted.",
		}),
	}

	reg.MustRegister(
		c.signUps,
		c.signIns,
		c.validations,
		c.signOuts,
		c.cleanupDeleted,
		c.cleanupFailed,
		c.remoteLatency,
		c.accountsCreated,
		c.providerSessions,
		c.providerDeleted,
	)
	return c
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (c *Collector) RecordSignUp(ok bool) { c.signUps.WithLabelValues(result(ok)).Inc() }
func (c *Collector) RecordSignIn(ok bool) { c.signIns.WithLabelValues(result(ok)).Inc() }

func (c *Collector) RecordValidation(outcome string) {
	c.validations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordSignOut() { c.signOuts.Inc() }

func (c *Collector) RecordCleanup(deleted, failed int) {
	c.cleanupDeleted.Add(float64(deleted))
	c.cleanupFailed.Add(float64(failed))
}

func (c *Collector) RecordRemoteLatency(op string, d time.Duration) {
	c.remoteLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) RecordAccountCreated() { c.accountsCreated.Inc() }

func (c *Collector) RecordProviderSession(ok bool) {
	c.providerSessions.WithLabelValues(result(ok)).Inc()
}

func (c *Collector) RecordProviderSessionDeleted() { c.providerDeleted.Inc() }

// Nop descarta todas las mediciones.
type Nop struct{}

func (Nop) RecordSignUp(bool)                         {}
func (Nop) RecordSignIn(bool)                         {}
func (Nop) RecordValidation(string)                   {}
func (Nop) RecordSignOut()                            {}
func (Nop) RecordCleanup(int, int)                    {}
func (Nop) RecordRemoteLatency(string, time.Duration) {}
func (Nop) RecordAccountCreated()                     {}
func (Nop) RecordProviderSession(bool)                {}
func (Nop) RecordProviderSessionDeleted()             {}

// Handler devuelve el handler de scrape para el registro dado.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
