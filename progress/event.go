// Package progress delivers batch progress events to websocket listeners and pending-job hand-off.
package progress

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Event is one progress update as serialised to listeners.
type Event struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewEvent derives Status from current and total.
func NewEvent(current, total int, message string) Event {
	status := StatusProcessing
	if current >= total {
		status = StatusCompleted
	}
	return Event{Current: current, Total: total, Message: message, Status: status}
}

// Sink receives progress events for one job.
type Sink func(Event)
