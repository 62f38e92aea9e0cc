// Package broadcast fans telemetry out to browsers connected over WebSocket.
//
// Every frame is one JSON object naming the event and carrying its data:
//
//	{"event": "earthquake/magnitude", "data": "4.7"}
//	{"event": "new-alert", "data": {"ID": 12, "DATA": "...", "TIMESTAMP": "..."}}
//
// Clients only see events sent while they are connected; there is no replay.
package broadcast

const (
	// EventMessage carries the greeting sent to every client on connect.
	EventMessage = "message"
	// EventNewAlert carries a freshly persisted alert row.
	EventNewAlert = "new-alert"

	helloPayload = "hello"
)

// Event is the envelope written to clients.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}
