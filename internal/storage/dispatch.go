package storage

import "fmt"

// AppendDispatchLog records one agent dispatch of a turn.
func (s *Store) AppendDispatchLog(e DispatchEntry) error {
	details := e.DetailsJSON
	if details == "" {
		details = "{}"
	}
	createdAt := nowString()
	if !e.CreatedAt.IsZero() {
		createdAt = formatTime(e.CreatedAt)
	}
	_, err := s.db.Exec(`
		INSERT INTO dispatch_log (id, conversation_id, event_id, turn, agent, state_before, decision, reason, action, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationID, e.EventID, e.Turn, e.Agent, e.StateBefore, e.Decision, e.Reason, e.Action, details, createdAt)
	if err != nil {
		return fmt.Errorf("appending dispatch log: %w", err)
	}
	return nil
}

// ListDispatchLog returns the newest limit entries of the conversation, oldest first.
func (s *Store) ListDispatchLog(conversationID string, limit int) ([]DispatchEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, event_id, turn, agent, state_before, decision, reason, action, details_json, created_at FROM (
			SELECT rowid AS seq, * FROM dispatch_log WHERE conversation_id = ? ORDER BY rowid DESC LIMIT ?
		) ORDER BY seq ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchEntry
	for rows.Next() {
		var e DispatchEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.EventID, &e.Turn, &e.Agent, &e.StateBefore,
			&e.Decision, &e.Reason, &e.Action, &e.DetailsJSON, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
