package document

import "github.com/rs/zerolog/log"

// EventType distinguishes resolution outcomes on the event stream.
type EventType string

const (
	EventPagesResolved EventType = "pages_resolved"
	EventPagesFailed   EventType = "pages_failed"
)

// Event announces that pages changed state. Consumers typically redraw
// the named pages at their true size.
type Event struct {
	Type  EventType
	Pages []int
}

// Events returns the document's event stream. The channel is closed by
// Dispose. Slow consumers lose events rather than stalling resolution.
func (d *Document) Events() <-chan Event {
	return d.events
}

func (d *Document) onResolved(page int, err error) {
	typ := EventPagesResolved
	if err != nil {
		typ = EventPagesFailed
	}
	d.evMu.Lock()
	defer d.evMu.Unlock()
	if d.evClosed {
		return
	}
	select {
	case d.events <- Event{Type: typ, Pages: []int{page}}:
	default:
		log.Debug().Int("page", page).Str("type", string(typ)).Msg("event dropped, consumer too slow")
	}
}
