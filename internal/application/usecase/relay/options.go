package relay

import (
	"time"

	"rtdrelay/internal/domain"
)

// Options is the immutable timing and subscription configuration injected
// into Client and Worker constructors.
type Options struct {
	// InitialHeartbeat is the elevated probe interval used during startup;
	// a successful handshake lowers it to SteadyHeartbeat.
	InitialHeartbeat time.Duration
	SteadyHeartbeat  time.Duration

	// UpdateInterval is the minimum spacing between outbound snapshots.
	UpdateInterval time.Duration

	// PollYield is the fixed yield between worker loop iterations, keeping
	// the loop responsive to cancellation.
	PollYield time.Duration

	// SettleDelay gives fresh subscriptions time to produce values before
	// the first snapshot is considered.
	SettleDelay time.Duration

	// RetryAttempts and RetryDelay bound per-topic subscription retries.
	RetryAttempts int
	RetryDelay    time.Duration

	// DerivativeFields is the field set subscribed for derivative symbols.
	// Plain underlyings always subscribe FieldLast only.
	DerivativeFields []domain.FieldKind
}

// DefaultOptions mirrors the provider's observed steady-state behavior.
func DefaultOptions() Options {
	return Options{
		InitialHeartbeat: 5 * time.Second,
		SteadyHeartbeat:  2 * time.Second,
		UpdateInterval:   2 * time.Second,
		PollYield:        200 * time.Millisecond,
		SettleDelay:      300 * time.Millisecond,
		RetryAttempts:    3,
		RetryDelay:       100 * time.Millisecond,
		DerivativeFields: DerivativeFieldSet(false, false, false, false),
	}
}

// DerivativeFieldSet builds the field list subscribed for derivative symbols.
// Gamma and open interest are always needed for exposure analytics; delta,
// vega, theta and volume ride behind caller feature flags.
func DerivativeFieldSet(delta, vega, theta, volume bool) []domain.FieldKind {
	fields := []domain.FieldKind{domain.FieldGamma, domain.FieldOpenInt}
	if delta {
		fields = append(fields, domain.FieldDelta)
	}
	if vega {
		fields = append(fields, domain.FieldVega)
	}
	if theta {
		fields = append(fields, domain.FieldTheta)
	}
	if volume {
		fields = append(fields, domain.FieldVolume)
	}
	return fields
}

// withDefaults fills zero values so a partially built Options is still safe.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.InitialHeartbeat <= 0 {
		o.InitialHeartbeat = def.InitialHeartbeat
	}
	if o.SteadyHeartbeat <= 0 {
		o.SteadyHeartbeat = def.SteadyHeartbeat
	}
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = def.UpdateInterval
	}
	if o.PollYield <= 0 {
		o.PollYield = def.PollYield
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = def.SettleDelay
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = def.RetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if len(o.DerivativeFields) == 0 {
		o.DerivativeFields = def.DerivativeFields
	}
	return o
}
