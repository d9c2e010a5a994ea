package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes relay output as server-sent-event frames. Each frame is
// `data: <json>` where json is {"content": ...} or {"error": ...}; the client
// infers the frame type from the payload.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &sseSink{w: w, flusher: flusher}, true
}

func (s *sseSink) frame(payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Content writes one content frame.
func (s *sseSink) Content(text string) error {
	return s.frame(map[string]string{"content": text})
}

// Error writes one error frame.
func (s *sseSink) Error(message string) error {
	return s.frame(map[string]string{"error": message})
}
