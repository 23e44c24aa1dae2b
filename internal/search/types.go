package search

import "encoding/json"

// Candidate is one ranked intent proposed for a customer's demand.
type Candidate struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Summary string  `json:"summary,omitempty"`
	Score   float64 `json:"score"`
}

// Query carries the text used to look up candidate intents.
type Query struct {
	ProductContext string
	Conversation   string
	Latest         string
}

// Condition gates a message variation on a customer profile field.
type Condition struct {
	Variable string `json:"variable"`
	Expected string `json:"expected"`
}

// Variation is an alternative message for an action, chosen when all of its
// conditions match the customer profile.
type Variation struct {
	Label        string      `json:"label"`
	Conditions   []Condition `json:"conditions"`
	Message      string      `json:"message,omitempty"`
	Instructions string      `json:"agent_instructions,omitempty"`
}

// PlanAction is a single step of a solution plan.
type PlanAction struct {
	Sequence     int         `json:"sequence"`
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	Description  string      `json:"description,omitempty"`
	Message      string      `json:"message,omitempty"`
	Instructions string      `json:"agent_instructions,omitempty"`
	Variations   []Variation `json:"message_variations,omitempty"`
}

// Plan is the ordered procedure that resolves an intent.
type Plan struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Actions []PlanAction `json:"actions"`
}

// MarshalVariations encodes variations for storage, "[]" when empty.
func MarshalVariations(v []Variation) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// UnmarshalVariations decodes stored variations, tolerating empty input.
func UnmarshalVariations(s string) []Variation {
	if s == "" {
		return nil
	}
	var v []Variation
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
