package editor

import "github.com/arc-hci/arcgrid/internal/domain"

// LimitAction is the decision from the safety limiter for a given count.
type LimitAction string

const (
	LimitContinue LimitAction = "continue"
	LimitWarn     LimitAction = "warn"
	LimitHalt     LimitAction = "halt"
)

// SafetyLimiter counts committed actions against a hard cap.
type SafetyLimiter struct {
	// Limit is the hard cap on committed actions. Zero disables the limiter.
	Limit int
	// WarnAt is the count at which a one-time warning is emitted. Zero disables the warning.
	WarnAt int

	warned  bool
	reached bool
}

// NewSafetyLimiter creates a limiter with the given cap and warning threshold.
func NewSafetyLimiter(limit, warnAt int) *SafetyLimiter {
	return &SafetyLimiter{Limit: limit, WarnAt: warnAt}
}

// Evaluate classifies a count without changing limiter state.
func (l *SafetyLimiter) Evaluate(count int) LimitAction {
	if l.Limit > 0 && count >= l.Limit {
		return LimitHalt
	}
	if l.WarnAt > 0 && count >= l.WarnAt {
		return LimitWarn
	}
	return LimitContinue
}

// Observe is called after every commit with the new count and returns the
// signals to deliver. Each signal kind fires at most once per session.
func (l *SafetyLimiter) Observe(count int, nowMs int64) []domain.Signal {
	var out []domain.Signal
	action := l.Evaluate(count)
	if action != LimitContinue && !l.warned && l.WarnAt > 0 && count >= l.WarnAt {
		l.warned = true
		out = append(out, domain.Signal{Kind: domain.SignalWarning, ActionCount: count, Limit: l.Limit, Timestamp: nowMs})
	}
	if action == LimitHalt && !l.reached {
		l.reached = true
		out = append(out, domain.Signal{Kind: domain.SignalLimitReached, ActionCount: count, Limit: l.Limit, Timestamp: nowMs})
	}
	return out
}

// Warned reports whether the warning has fired.
func (l *SafetyLimiter) Warned() bool { return l.warned }

// Reached reports whether the hard cap has been hit.
func (l *SafetyLimiter) Reached() bool { return l.reached }
