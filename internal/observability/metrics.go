package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// AuthGateOutcomes counts authentication gate results by outcome
	// (anonymous, malformed, rejected, admitted).
	AuthGateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_auth_gate_outcomes_total",
		Help: "Authentication gate outcomes",
	}, []string{"outcome"})

	// OTPEvents counts passcode lifecycle events (issued, delivery_failed, verified,
	// mismatch, expired, locked).
	OTPEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_otp_events_total",
		Help: "One-time passcode lifecycle events",
	}, []string{"event"})

	// CredentialEvents counts ledger operations (minted, revoked, expired, sign_failed).
	CredentialEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_credential_events_total",
		Help: "Credential ledger events",
	}, []string{"event"})

	// AccessRequestEvents counts access request transitions (created, approved, denied,
	// acknowledged, withdrawn, conflict).
	AccessRequestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_access_request_events_total",
		Help: "Access request lifecycle events",
	}, []string{"event"})
)
