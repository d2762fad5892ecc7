package protocol

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// resetThreshold is how long a connection must stay up before the reconnect
// interval starts over.
const resetThreshold = 30 * time.Second

// newDefaultBackoff: 1s → 60s, multiplier 2x, ±20% jitter.
func newDefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
