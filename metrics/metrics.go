// Package metrics defines the observability hooks shared by the memoizing
// cache and its store backends. A Noop implementation is used by default.
package metrics

import "time"

// Outcome classifies how a value factory run ended.
type Outcome uint8

const (
	// Computed: the factory returned a value that is now cached.
	Computed Outcome = iota
	// Failed: the factory returned an error or panicked; the key was evicted.
	Failed
	// Canceled: the factory reported cancellation; the key was evicted.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Computed:
		return "computed"
	case Failed:
		return "failed"
	default:
		return "canceled"
	}
}

// Metrics receives cache events. Implementations must be safe for
// concurrent use; calls may happen under store locks, so keep them cheap.
type Metrics interface {
	// Hit and Miss are reported by store backends on lookups.
	Hit()
	Miss()
	// Evict is reported by backends with a stable reason label.
	Evict(reason string)
	// Size reports resident entries and their accounted size.
	Size(entries int, size int64)
	// Compute is reported by the cache when a factory run settles.
	Compute(o Outcome, d time.Duration)
	// Heal is reported when a slot cached for another type is replaced.
	Heal()
}

// Noop is a drop-in Metrics implementation that does nothing.
type Noop struct{}

func (Noop) Hit()                           {}
func (Noop) Miss()                          {}
func (Noop) Evict(string)                   {}
func (Noop) Size(int, int64)                {}
func (Noop) Compute(Outcome, time.Duration) {}
func (Noop) Heal()                          {}

var _ Metrics = Noop{}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop{}
	}
	return m
}
