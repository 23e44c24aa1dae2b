package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kalambet/caseflow/internal/messaging"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/kalambet/caseflow/internal/worker"
)

// EventRequest is an inbound chat event delivered by the platform webhook.
type EventRequest struct {
	ConversationID         string         `json:"conversation_id"`
	ExternalConversationID string         `json:"external_conversation_id"`
	EventID                string         `json:"event_id"`
	AuthorType             string         `json:"author_type"`
	Content                string         `json:"content"`
	HandlerID              string         `json:"handler_id"`
	HandlerName            string         `json:"handler_name"`
	AutopilotEnabled       *bool          `json:"autopilot_enabled"`
	ProductContext         string         `json:"product_context"`
	CustomerProfile        map[string]any `json:"customer_profile"`
	CreatedAt              *time.Time     `json:"created_at"`
}

type EventResponse struct {
	EventID int64  `json:"event_id"`
	JobID   string `json:"job_id,omitempty"`
}

func handleWebhookEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ConversationID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "conversation_id is required")
			return
		}
		if req.AuthorType == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "author_type is required")
			return
		}

		conv, err := conversationFromRequest(deps.Store, req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Store.UpsertConversation(conv); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save conversation: %v", err)
			return
		}

		ev := storage.Event{
			ConversationID: req.ConversationID,
			ExternalID:     req.EventID,
			AuthorType:     req.AuthorType,
			Content:        messaging.PlainText(req.Content),
		}
		if req.CreatedAt != nil {
			ev.CreatedAt = *req.CreatedAt
		}
		id, err := deps.Store.SaveEvent(ev)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save event: %v", err)
			return
		}

		resp := EventResponse{EventID: id}
		if storage.IsCustomerAuthor(req.AuthorType) {
			jobID, err := worker.Enqueue(deps.Store, req.ConversationID, id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
				return
			}
			resp.JobID = jobID
		}

		writeJSON(w, http.StatusAccepted, resp)
	}
}

// conversationFromRequest merges the webhook's handler and profile fields
// over the stored conversation. Omitted fields keep their stored values.
func conversationFromRequest(store *storage.Store, req EventRequest) (storage.Conversation, error) {
	conv, err := store.GetConversation(req.ConversationID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Conversation{}, err
	}
	conv.ID = req.ConversationID
	conv.CustomerProfile = ""

	if req.ExternalConversationID != "" {
		conv.ExternalID = req.ExternalConversationID
	}
	if req.HandlerID != "" || req.HandlerName != "" {
		conv.HandlerID = req.HandlerID
		conv.HandlerName = req.HandlerName
	}
	if req.AutopilotEnabled != nil {
		conv.AutopilotEnabled = *req.AutopilotEnabled
	}
	if req.ProductContext != "" {
		conv.ProductContext = req.ProductContext
	}
	if len(req.CustomerProfile) > 0 {
		b, err := json.Marshal(req.CustomerProfile)
		if err != nil {
			return storage.Conversation{}, err
		}
		conv.CustomerProfile = string(b)
	}
	return conv, nil
}
