package entity

// EventType tags every frame exchanged over the event socket.
type EventType string

const (
	EventProgress    EventType = "progress"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventSubscribed  EventType = "subscribed"
)

// Event is the envelope delivered to subscribers. Data is a ProgressSample,
// CompleteData or ErrorData depending on Type.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"jobId"`
	Data  any       `json:"data,omitempty"`
}

type CompleteData struct {
	DownloadURL string `json:"downloadUrl"`
}

type ErrorData struct {
	Error string `json:"error"`
}
