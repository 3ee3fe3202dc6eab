package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clarioncrm/clarion/eventstore"
)

// webhookEnvelope is the OpenPhone webhook shape. Only the fields the
// event store needs are decoded.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if envelope.ID == "" || envelope.Type == "" {
		s.writeError(w, http.StatusBadRequest, "id and type are required")
		return
	}

	// First line of dedupe; the event store's unique event id is the
	// backstop when the cache has been flushed.
	fresh, err := s.dedupe.Add(r.Context(), "webhook:event:"+envelope.ID, true, dedupeTTL)
	if err != nil {
		s.logger.Warn("webhook dedupe cache unavailable", "error", err)
		fresh = true
	}
	if !fresh {
		s.recordDuplicate(envelope.ID)
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	event := &eventstore.Event{
		EventID:   envelope.ID,
		EventType: envelope.Type,
		Payload: map[string]any{
			"message_id": envelope.Data.Object.ID,
			"text":       envelope.Data.Object.Text,
			"from":       envelope.Data.Object.From,
			"to":         envelope.Data.Object.To,
		},
	}
	if err := s.store.Create(r.Context(), event); err != nil {
		if errors.Is(err, eventstore.ErrDuplicateEventID) {
			s.recordDuplicate(envelope.ID)
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		s.logger.Error("storing webhook event failed", "error", err, "event_id", envelope.ID)
		s.writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveWebhook(envelope.Type)
	}
	s.logger.Info("webhook event stored", "event_id", envelope.ID, "type", envelope.Type)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) recordDuplicate(eventID string) {
	if s.metrics != nil {
		s.metrics.ObserveDuplicateWebhook()
	}
	s.logger.Info("duplicate webhook event ignored", "event_id", eventID)
}
