package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- Conversations ---

// UpsertConversation creates the conversation or refreshes its handler,
// autopilot flag and, when non-empty, its product context and customer profile.
func (s *Store) UpsertConversation(c Conversation) error {
	now := nowString()
	profile := c.CustomerProfile
	if profile == "" {
		profile = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, external_id, handler_id, handler_name, autopilot_enabled, product_context, customer_profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_id = CASE WHEN excluded.external_id != '' THEN excluded.external_id ELSE conversations.external_id END,
			handler_id = excluded.handler_id,
			handler_name = excluded.handler_name,
			autopilot_enabled = excluded.autopilot_enabled,
			product_context = CASE WHEN excluded.product_context != '' THEN excluded.product_context ELSE conversations.product_context END,
			customer_profile = CASE WHEN excluded.customer_profile != '{}' THEN excluded.customer_profile ELSE conversations.customer_profile END,
			updated_at = excluded.updated_at`,
		c.ID, c.ExternalID, c.HandlerID, c.HandlerName, boolToInt(c.AutopilotEnabled),
		c.ProductContext, profile, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var (
		c                    Conversation
		autopilot            int
		createdAt, updatedAt string
	)
	err := s.db.QueryRow(`
		SELECT id, external_id, handler_id, handler_name, autopilot_enabled, product_context, customer_profile, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.ExternalID, &c.HandlerID, &c.HandlerName, &autopilot, &c.ProductContext, &c.CustomerProfile, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	c.AutopilotEnabled = autopilot != 0
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Conversation{}, err
	}
	if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// --- Events ---

// SaveEvent appends an inbound event and returns its id. Ids increase
// monotonically across the whole store. A redelivered event (same external id
// in the same conversation) returns the id assigned the first time.
func (s *Store) SaveEvent(e Event) (int64, error) {
	createdAt := nowString()
	if !e.CreatedAt.IsZero() {
		createdAt = formatTime(e.CreatedAt)
	}

	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		if e.ExternalID != "" {
			err := tx.QueryRow(`SELECT id FROM events WHERE conversation_id = ? AND external_id = ?`, e.ConversationID, e.ExternalID).Scan(&id)
			if err == nil {
				return nil
			}
			if err != sql.ErrNoRows {
				return err
			}
		}
		res, err := tx.Exec(`
			INSERT INTO events (conversation_id, external_id, author_type, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.ConversationID, e.ExternalID, e.AuthorType, e.Content, createdAt)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("saving event for %s: %w", e.ConversationID, err)
	}
	return id, nil
}

const eventColumns = `id, conversation_id, external_id, author_type, content, created_at`

func scanEvent(r rowScanner) (Event, error) {
	var e Event
	var createdAt string
	if err := r.Scan(&e.ID, &e.ConversationID, &e.ExternalID, &e.AuthorType, &e.Content, &createdAt); err != nil {
		return Event{}, err
	}
	var err error
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (s *Store) GetEvent(id int64) (Event, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return e, err
}

// LastMessage returns the newest event of the conversation.
func (s *Store) LastMessage(conversationID string) (Event, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, conversationID))
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return e, err
}

// HasEventsAfter reports whether the conversation has any event newer than eventID.
func (s *Store) HasEventsAfter(conversationID string, eventID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE conversation_id = ? AND id > ?`, conversationID, eventID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentEvents returns up to limit events of the conversation, oldest first,
// ending at (and including) uptoID.
func (s *Store) RecentEvents(conversationID string, uptoID int64, limit int) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT `+eventColumns+` FROM (
			SELECT `+eventColumns+` FROM events
			WHERE conversation_id = ? AND id <= ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, uptoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Suggestions ---

func (s *Store) CreateSuggestion(sg Suggestion) error {
	now := nowString()
	status := sg.Status
	if status == "" {
		status = SuggestionCreated
	}
	_, err := s.db.Exec(`
		INSERT INTO suggestions (id, conversation_id, event_id, in_response_to, source, text, status, skip_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.ConversationID, sg.EventID, sg.InResponseTo, sg.Source, sg.Text, status, sg.SkipReason, now, now)
	if err != nil {
		return fmt.Errorf("creating suggestion: %w", err)
	}
	return nil
}

const suggestionColumns = `id, conversation_id, event_id, in_response_to, source, text, status, skip_reason, created_at, updated_at`

func scanSuggestion(r rowScanner) (Suggestion, error) {
	var sg Suggestion
	var createdAt, updatedAt string
	if err := r.Scan(&sg.ID, &sg.ConversationID, &sg.EventID, &sg.InResponseTo, &sg.Source, &sg.Text,
		&sg.Status, &sg.SkipReason, &createdAt, &updatedAt); err != nil {
		return Suggestion{}, err
	}
	var err error
	if sg.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Suggestion{}, err
	}
	if sg.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Suggestion{}, err
	}
	return sg, nil
}

func (s *Store) GetSuggestion(id string) (Suggestion, error) {
	sg, err := scanSuggestion(s.db.QueryRow(`SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Suggestion{}, ErrNotFound
	}
	return sg, err
}

func (s *Store) ListSuggestions(conversationID string, limit int) ([]Suggestion, error) {
	rows, err := s.db.Query(`SELECT `+suggestionColumns+` FROM suggestions WHERE conversation_id = ? ORDER BY rowid DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// TransitionSuggestion moves a suggestion from one status to another only if
// it is still in from. It reports whether the move happened.
func (s *Store) TransitionSuggestion(id, from, to, reason string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE suggestions SET status = ?, skip_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, strings.TrimSpace(reason), nowString(), id, from)
	if err != nil {
		return false, fmt.Errorf("updating suggestion %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
