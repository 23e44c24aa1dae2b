package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// --- Demands ---

// CreateDemand completes every open demand of the conversation and inserts d
// as the single active one.
func (s *Store) CreateDemand(d CaseDemand) error {
	now := nowString()
	status := d.Status
	if status == "" {
		status = DemandSearching
	}
	candidates := d.CandidatesJSON
	if candidates == "" {
		candidates = "[]"
	}
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE case_demands SET status = ?, updated_at = ? WHERE conversation_id = ? AND status != ?`,
			DemandCompleted, now, d.ConversationID, DemandCompleted); err != nil {
			return fmt.Errorf("completing previous demands: %w", err)
		}
		_, err := tx.Exec(`
			INSERT INTO case_demands (id, conversation_id, status, intent_id, intent_label, candidates_json, interaction_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			d.ID, d.ConversationID, status, d.IntentID, d.IntentLabel, candidates, now, now)
		if err != nil {
			return fmt.Errorf("inserting demand: %w", err)
		}
		return nil
	})
}

const demandColumns = `id, conversation_id, status, intent_id, intent_label, candidates_json, interaction_count, created_at, updated_at`

func scanDemand(r rowScanner) (CaseDemand, error) {
	var d CaseDemand
	var createdAt, updatedAt string
	if err := r.Scan(&d.ID, &d.ConversationID, &d.Status, &d.IntentID, &d.IntentLabel, &d.CandidatesJSON,
		&d.InteractionCount, &createdAt, &updatedAt); err != nil {
		return CaseDemand{}, err
	}
	var err error
	if d.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return CaseDemand{}, err
	}
	if d.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return CaseDemand{}, err
	}
	return d, nil
}

// ActiveDemand returns the conversation's non-completed demand.
func (s *Store) ActiveDemand(conversationID string) (CaseDemand, error) {
	d, err := scanDemand(s.db.QueryRow(`
		SELECT `+demandColumns+` FROM case_demands
		WHERE conversation_id = ? AND status != ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, conversationID, DemandCompleted))
	if err == sql.ErrNoRows {
		return CaseDemand{}, ErrNotFound
	}
	return d, err
}

func (s *Store) GetDemand(id string) (CaseDemand, error) {
	d, err := scanDemand(s.db.QueryRow(`SELECT `+demandColumns+` FROM case_demands WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return CaseDemand{}, ErrNotFound
	}
	return d, err
}

// ListDemands returns every demand of the conversation, oldest first.
func (s *Store) ListDemands(conversationID string) ([]CaseDemand, error) {
	rows, err := s.db.Query(`SELECT `+demandColumns+` FROM case_demands WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaseDemand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) SetDemandCandidates(id, candidatesJSON string) error {
	return requireRow(s.db.Exec(`UPDATE case_demands SET candidates_json = ?, updated_at = ? WHERE id = ?`,
		candidatesJSON, nowString(), id))
}

// ResolveDemand records the selected intent and marks the demand found.
func (s *Store) ResolveDemand(id, intentID, intentLabel string) error {
	return requireRow(s.db.Exec(`UPDATE case_demands SET intent_id = ?, intent_label = ?, status = ?, updated_at = ? WHERE id = ?`,
		intentID, intentLabel, DemandFound, nowString(), id))
}

func (s *Store) SetDemandStatus(id, status string) error {
	return requireRow(s.db.Exec(`UPDATE case_demands SET status = ?, updated_at = ? WHERE id = ?`, status, nowString(), id))
}

// IncrementDemandInteractions consumes one interaction unit if the demand is
// still below max. It reports whether the unit was granted.
func (s *Store) IncrementDemandInteractions(id string, max int) (bool, error) {
	return s.incrementBelow("case_demands", id, max)
}

func (s *Store) incrementBelow(table, id string, max int) (bool, error) {
	res, err := s.db.Exec(`UPDATE `+table+` SET interaction_count = interaction_count + 1, updated_at = ?
		WHERE id = ? AND interaction_count < ?`, nowString(), id, max)
	if err != nil {
		return false, fmt.Errorf("incrementing %s interactions for %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- Solutions ---

// CreateSolution inserts a solution together with its ordered action plan.
func (s *Store) CreateSolution(sol CaseSolution, actions []CaseAction) error {
	now := nowString()
	status := sol.Status
	if status == "" {
		status = SolutionPending
	}
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO case_solutions (id, demand_id, conversation_id, intent_id, status, interaction_count, collected_inputs_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, '{}', ?, ?)`,
			sol.ID, sol.DemandID, sol.ConversationID, sol.IntentID, status, now, now)
		if err != nil {
			return fmt.Errorf("inserting solution: %w", err)
		}
		for _, a := range actions {
			variations := a.VariationsJSON
			if variations == "" {
				variations = "[]"
			}
			actionStatus := a.Status
			if actionStatus == "" {
				actionStatus = ActionNotStarted
			}
			_, err := tx.Exec(`
				INSERT INTO case_actions (id, solution_id, sequence, name, action_type, description, message, instructions, variations_json, status, awaiting_input, result, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`,
				a.ID, sol.ID, a.Sequence, a.Name, a.ActionType, a.Description, a.Message, a.Instructions,
				variations, actionStatus, now, now)
			if err != nil {
				return fmt.Errorf("inserting action %d: %w", a.Sequence, err)
			}
		}
		return nil
	})
}

const solutionColumns = `id, demand_id, conversation_id, intent_id, status, interaction_count, collected_inputs_json, created_at, updated_at`

func scanSolution(r rowScanner) (CaseSolution, error) {
	var sol CaseSolution
	var createdAt, updatedAt string
	if err := r.Scan(&sol.ID, &sol.DemandID, &sol.ConversationID, &sol.IntentID, &sol.Status,
		&sol.InteractionCount, &sol.CollectedInputsJSON, &createdAt, &updatedAt); err != nil {
		return CaseSolution{}, err
	}
	var err error
	if sol.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return CaseSolution{}, err
	}
	if sol.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return CaseSolution{}, err
	}
	return sol, nil
}

func (s *Store) SolutionForDemand(demandID string) (CaseSolution, error) {
	sol, err := scanSolution(s.db.QueryRow(`SELECT `+solutionColumns+` FROM case_solutions WHERE demand_id = ?`, demandID))
	if err == sql.ErrNoRows {
		return CaseSolution{}, ErrNotFound
	}
	return sol, err
}

func (s *Store) GetSolution(id string) (CaseSolution, error) {
	sol, err := scanSolution(s.db.QueryRow(`SELECT `+solutionColumns+` FROM case_solutions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return CaseSolution{}, ErrNotFound
	}
	return sol, err
}

func (s *Store) SetSolutionStatus(id, status string) error {
	return requireRow(s.db.Exec(`UPDATE case_solutions SET status = ?, updated_at = ? WHERE id = ?`, status, nowString(), id))
}

// IncrementSolutionInteractions consumes one AI interaction unit if the
// solution is still below max. It reports whether the unit was granted.
func (s *Store) IncrementSolutionInteractions(id string, max int) (bool, error) {
	return s.incrementBelow("case_solutions", id, max)
}

// SetCollectedInput stores a value the customer supplied for an action.
func (s *Store) SetCollectedInput(solutionID, field, value string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRow(`SELECT collected_inputs_json FROM case_solutions WHERE id = ?`, solutionID).Scan(&raw)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		inputs := map[string]string{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
				return fmt.Errorf("decoding collected inputs: %w", err)
			}
		}
		inputs[field] = value
		b, err := json.Marshal(inputs)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE case_solutions SET collected_inputs_json = ?, updated_at = ? WHERE id = ?`, string(b), nowString(), solutionID)
		return err
	})
}

// --- Actions ---

const actionColumns = `id, solution_id, sequence, name, action_type, description, message, instructions, variations_json, status, awaiting_input, result, created_at, updated_at`

// ListActions returns the solution's actions in execution order.
func (s *Store) ListActions(solutionID string) ([]CaseAction, error) {
	rows, err := s.db.Query(`SELECT `+actionColumns+` FROM case_actions WHERE solution_id = ? ORDER BY sequence ASC`, solutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaseAction
	for rows.Next() {
		var a CaseAction
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.SolutionID, &a.Sequence, &a.Name, &a.ActionType, &a.Description, &a.Message,
			&a.Instructions, &a.VariationsJSON, &a.Status, &a.AwaitingInput, &a.Result, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetActionState overwrites an action's status, awaited input field and result.
func (s *Store) SetActionState(id, status, awaitingInput, result string) error {
	return requireRow(s.db.Exec(`UPDATE case_actions SET status = ?, awaiting_input = ?, result = ?, updated_at = ? WHERE id = ?`,
		status, awaitingInput, result, nowString(), id))
}
