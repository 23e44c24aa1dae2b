package storage

import (
	"database/sql"
	"fmt"

	"github.com/kalambet/caseflow/internal/state"
)

const stateColumns = `s.conversation_id, s.status, s.owner, s.waiting_for_customer, s.last_processed_event_id, s.created_at, s.updated_at,
	COALESCE((SELECT d.interaction_count FROM case_demands d
		WHERE d.conversation_id = s.conversation_id AND d.status != 'completed'
		ORDER BY d.created_at DESC, d.rowid DESC LIMIT 1), 0),
	COALESCE((SELECT c.interaction_count FROM case_solutions c
		WHERE c.conversation_id = s.conversation_id AND c.status IN ('pending', 'in_progress')
		ORDER BY c.created_at DESC, c.rowid DESC LIMIT 1), 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner) (OrchestratorState, error) {
	var (
		st                   OrchestratorState
		status, owner        string
		waiting              int
		lastEvent            sql.NullInt64
		createdAt, updatedAt string
	)
	if err := r.Scan(&st.ConversationID, &status, &owner, &waiting, &lastEvent, &createdAt, &updatedAt,
		&st.DemandInteractions, &st.SolutionInteractions); err != nil {
		return OrchestratorState{}, err
	}

	var err error
	if st.Status, err = state.ParseStatus(status); err != nil {
		return OrchestratorState{}, err
	}
	if st.Owner, err = state.ParseOwner(owner); err != nil {
		return OrchestratorState{}, err
	}
	st.WaitingForCustomer = waiting != 0
	if lastEvent.Valid {
		v := lastEvent.Int64
		st.LastProcessedEventID = &v
	}
	if st.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return OrchestratorState{}, err
	}
	if st.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return OrchestratorState{}, err
	}
	return st, nil
}

// GetOrchestratorState returns the orchestration record for a conversation,
// or ErrNotFound if no event has been claimed for it yet.
func (s *Store) GetOrchestratorState(conversationID string) (OrchestratorState, error) {
	st, err := scanState(s.db.QueryRow(`SELECT `+stateColumns+` FROM orchestrator_state s WHERE s.conversation_id = ?`, conversationID))
	if err == sql.ErrNoRows {
		return OrchestratorState{}, ErrNotFound
	}
	if err != nil {
		return OrchestratorState{}, fmt.Errorf("loading orchestrator state %s: %w", conversationID, err)
	}
	return st, nil
}

// ListOrchestratorStates returns the most recently updated records, optionally
// filtered by status.
func (s *Store) ListOrchestratorStates(status state.Status, limit int) ([]OrchestratorState, error) {
	query := `SELECT ` + stateColumns + ` FROM orchestrator_state s`
	args := []any{}
	if status != "" {
		query += ` WHERE s.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY s.updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrchestratorState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// TryClaimEvent grants the caller exclusive permission to process eventID for
// the conversation. The marker moves to eventID and the waiting flag clears
// only if the stored marker still equals expected (NULL when expected is nil)
// and eventID is newer than it. When no record exists one is created and the
// claim succeeds. Losing a race is reported as (false, nil).
func (s *Store) TryClaimEvent(conversationID string, eventID int64, expected *int64) (bool, error) {
	now := nowString()

	var (
		res sql.Result
		err error
	)
	if expected == nil {
		res, err = s.db.Exec(`
			UPDATE orchestrator_state
			SET last_processed_event_id = ?, waiting_for_customer = 0, updated_at = ?
			WHERE conversation_id = ? AND last_processed_event_id IS NULL`,
			eventID, now, conversationID)
	} else {
		res, err = s.db.Exec(`
			UPDATE orchestrator_state
			SET last_processed_event_id = ?, waiting_for_customer = 0, updated_at = ?
			WHERE conversation_id = ? AND last_processed_event_id = ? AND last_processed_event_id < ?`,
			eventID, now, conversationID, *expected, eventID)
	}
	if err != nil {
		return false, fmt.Errorf("claiming event %d for %s: %w", eventID, conversationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	res, err = s.db.Exec(`
		INSERT INTO orchestrator_state (conversation_id, status, owner, waiting_for_customer, last_processed_event_id, created_at, updated_at)
		VALUES (?, 'new', '', 0, ?, ?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		conversationID, eventID, now, now)
	if err != nil {
		return false, fmt.Errorf("creating orchestrator state for %s: %w", conversationID, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateState writes an agent transition. check receives the stored owner and
// the requested one before anything is written; a non-nil error aborts the
// update. The status/owner invariant is always enforced.
func (s *Store) UpdateState(conversationID string, u StateUpdate, check func(from, to state.Owner) error) error {
	if err := state.CheckInvariant(u.Status, u.Owner); err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRow(`SELECT owner FROM orchestrator_state WHERE conversation_id = ?`, conversationID).Scan(&owner)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("reading owner for %s: %w", conversationID, err)
		}
		from, err := state.ParseOwner(owner)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(from, u.Owner); err != nil {
				return err
			}
		}

		now := nowString()
		_, err = tx.Exec(`
			INSERT INTO orchestrator_state (conversation_id, status, owner, waiting_for_customer, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id) DO UPDATE SET
				status = excluded.status,
				owner = excluded.owner,
				waiting_for_customer = excluded.waiting_for_customer,
				updated_at = excluded.updated_at`,
			conversationID, string(u.Status), string(u.Owner), boolToInt(u.WaitingForCustomer), now, now)
		if err != nil {
			return fmt.Errorf("updating state for %s: %w", conversationID, err)
		}
		return nil
	})
}
