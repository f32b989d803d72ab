package pipeline

import (
	"context"

	"github.com/torro-zz/pvre/internal/model"
)

// Event is one entry in the ordered progress stream a run produces. Events
// are delivered in emission order; the consumer owns the channel and may
// stop reading at any time, which cancels the run through its context.
type Event struct {
	Data    map[string]any
	Step    model.RunState
	Message string
}

// emit delivers one event, giving up if the run is cancelled while the
// consumer is not reading.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, step model.RunState, message string, data map[string]any) {
	if events == nil {
		return
	}
	select {
	case events <- Event{Step: step, Message: message, Data: data}:
	case <-ctx.Done():
	}
}
