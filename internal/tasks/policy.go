package tasks

import "time"

// DefaultReconnectDelay is the fixed pause between a disconnect and the next
// dial attempt.
const DefaultReconnectDelay = 5 * time.Second

// ReconnectPolicy decides when a dropped connection is dialed again.
//
// The delay is fixed; there is no backoff. MaxAttempts bounds consecutive
// failed attempts and is unbounded when zero.
type ReconnectPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy retries forever every DefaultReconnectDelay.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: DefaultReconnectDelay}
}

// Next returns the delay before the given attempt (1-based) and whether the
// attempt is allowed at all.
func (p ReconnectPolicy) Next(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return delay, true
}
