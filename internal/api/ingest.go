package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"bessmon/internal/codec"
	"bessmon/internal/transport"
)

// handleIngest accepts one JSON object or an array of them and hands each
// valid item to the render loop as if it had arrived from the broker.
// ?kind=alarm routes items to the alarms topic.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	cfg := s.cfg.Get()
	topic := cfg.Broker.ReadingsTopic
	validate := func(item []byte, at time.Time) error {
		_, err := codec.DecodeReading(item, at)
		return err
	}
	if r.URL.Query().Get("kind") == "alarm" {
		topic = cfg.Broker.AlarmsTopic
		validate = func(item []byte, at time.Time) error {
			_, err := codec.DecodeAlarm(item, at)
			return err
		}
	}

	var items []json.RawMessage
	if trim[0] == '[' {
		if err := json.Unmarshal(trim, &items); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	} else {
		items = []json.RawMessage{trim}
	}

	accepted, failed := 0, 0
	now := time.Now().UTC()
	for _, item := range items {
		if err := validate(item, now); err != nil {
			s.logger.Warn("ingest item rejected", "topic", topic, "err", err)
			failed++
			continue
		}
		s.backend.Enqueue(transport.Message{Topic: topic, Payload: []byte(item), ReceivedAt: now})
		accepted++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"failed":   failed,
	})
}
