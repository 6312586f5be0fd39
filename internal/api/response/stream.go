package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EventStream writes server-sent events, one flushed frame per Send.
type EventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewEventStream sends the event-stream headers and lifts the write deadline, since a
// stream outlives the server's write timeout.
func NewEventStream(w http.ResponseWriter) *EventStream {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("stream write deadline not adjustable", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &EventStream{w: w, rc: rc}
}

// Send writes data as JSON under the given event name. An error means the client is
// gone or data cannot be encoded; the stream should be abandoned either way.
func (s *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}
