package ratelimit

import "time"

// refill advances the bucket to now, accruing elapsed-time tokens capped at
// capacity. A bucket seen for the first time starts full.
func refill(state BucketState, now time.Time, capacity, refillPerMs float64) BucketState {
	if state.LastRefillAt.IsZero() {
		state.Tokens = capacity
		state.LastRefillAt = now
		return state
	}
	elapsedMs := float64(now.Sub(state.LastRefillAt)) / float64(time.Millisecond)
	if elapsedMs > 0 {
		state.Tokens += elapsedMs * refillPerMs
		state.LastRefillAt = now
	}
	if state.Tokens > capacity {
		state.Tokens = capacity
	}
	if state.Tokens < 0 {
		state.Tokens = 0
	}
	return state
}

// timeToAccumulate returns how long the bucket needs to accrue enough tokens
// for one minimal admit.
func timeToAccumulate(tokens, refillPerMs float64) time.Duration {
	if refillPerMs <= 0 {
		return 0
	}
	deficit := minAdmitTokens - tokens
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / refillPerMs * float64(time.Millisecond))
}
