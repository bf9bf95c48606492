package fetcher

import "strconv"

// Observer receives fetcher lifecycle events. On is called from whichever
// goroutine triggered the event, so implementations must be safe for
// concurrent use. A panic in On is logged and dropped.
type Observer interface {
	On(eventData EventData)
}

// Event represents a fetcher event type.
type Event int

const (
	// EventHit is emitted when a non-forced Fetch returns a cached value.
	EventHit Event = iota
	// EventMiss is emitted when Fetch starts a new invocation.
	EventMiss
	// EventDedup is emitted when a non-forced Fetch joins an invocation
	// that is already in flight.
	EventDedup
	// EventStale is emitted when a settled invocation is discarded because
	// a newer Fetch or a cache clear superseded it.
	EventStale
	// EventError is emitted when a failure is recorded in a slot.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventDedup:
		return "dedup"
	case EventStale:
		return "stale"
	case EventError:
		return "error"
	default:
		return "Event(" + strconv.Itoa(int(e)) + ")"
	}
}

// EventData carries the details of a fetcher event.
type EventData struct {
	Event Event
	// Key is the request key formatted with fmt.Sprint. It is empty for a
	// single-slot Fetcher.
	Key string
	// Seq is the slot sequence number the event belongs to.
	Seq uint64
}
