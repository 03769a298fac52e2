package pipeline

import "fmt"

// State is the phase of a Coordinator.
type State int32

const (
	StateIdle State = iota
	StateCrawling
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCrawling:
		return "crawling"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Ordering selects how crawling and indexing overlap.
type Ordering int

const (
	// OrderingConcurrent starts workers alongside the crawlers.
	OrderingConcurrent Ordering = iota
	// OrderingProducersFirst finishes crawling before any worker starts.
	OrderingProducersFirst
)

func (o Ordering) String() string {
	switch o {
	case OrderingConcurrent:
		return "concurrent"
	case OrderingProducersFirst:
		return "producers-first"
	default:
		return "unknown"
	}
}

// ParseOrdering accepts the names returned by Ordering.String.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "concurrent":
		return OrderingConcurrent, nil
	case "producers-first":
		return OrderingProducersFirst, nil
	}
	return 0, fmt.Errorf("unknown ordering %q", s)
}
