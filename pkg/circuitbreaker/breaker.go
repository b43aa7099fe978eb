package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker builds the breaker wrapped around each outbound
// provider call. Trips after 3+ requests with a 60% failure ratio and
// probes again after a minute.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
