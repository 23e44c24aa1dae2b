package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// looseString accepts a JSON string, number or null.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = looseString(n.String())
	}
	return nil
}

func (s looseString) String() string { return strings.TrimSpace(string(s)) }

// extractJSON returns the outermost JSON object in raw, tolerating code fences
// and prose around it.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func decodeObject(raw string, v any) error {
	obj, ok := extractJSON(raw)
	if !ok {
		return fmt.Errorf("%w: no JSON object in reply", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

type demandReply struct {
	Decision      string      `json:"decision"`
	IntentID      looseString `json:"selected_intent_id"`
	IntentLabel   string      `json:"selected_intent_label"`
	SelectedBlock *struct {
		ID    looseString `json:"id"`
		Label string      `json:"label"`
	} `json:"selected_intent"`
	Question string `json:"clarifying_question"`
	Reason   string `json:"reason"`
}

// ParseDemand maps a raw model reply to a DemandDecision. A nested
// selected_intent object is accepted as well as the flat fields.
func ParseDemand(raw string) DemandDecision {
	var r demandReply
	if err := decodeObject(raw, &r); err != nil {
		return Unparseable{Raw: raw, Err: err}
	}

	id, label := r.IntentID.String(), strings.TrimSpace(r.IntentLabel)
	if r.SelectedBlock != nil {
		if id == "" {
			id = r.SelectedBlock.ID.String()
		}
		if label == "" {
			label = strings.TrimSpace(r.SelectedBlock.Label)
		}
	}

	switch strings.ToLower(strings.TrimSpace(r.Decision)) {
	case decisionSelected:
		if id == "" {
			return Unparseable{Raw: raw, Err: fmt.Errorf("%w: selected_intent without id", ErrUnparseable)}
		}
		return Selected{IntentID: id, Label: label, Reason: r.Reason}
	case decisionClarification:
		q := strings.TrimSpace(r.Question)
		if q == "" {
			return Unparseable{Raw: raw, Err: fmt.Errorf("%w: need_clarification without question", ErrUnparseable)}
		}
		return NeedsClarification{Question: q, Reason: r.Reason}
	default:
		return Unparseable{Raw: raw, Err: fmt.Errorf("%w: unknown decision %q", ErrUnparseable, r.Decision)}
	}
}

type closerReply struct {
	WantsMoreHelp     *json.RawMessage `json:"wants_more_help"`
	WantsMoreHelpAlt  *json.RawMessage `json:"wantsMoreHelp"`
	SuggestedResponse string           `json:"suggested_response"`
}

// ParseCloser maps a raw model reply to a CloserDecision. The flag may be a
// boolean or a "true"/"false" string; a missing flag is an error.
func ParseCloser(raw string) (CloserDecision, error) {
	var r closerReply
	if err := decodeObject(raw, &r); err != nil {
		return CloserDecision{}, err
	}

	flag := r.WantsMoreHelp
	if flag == nil {
		flag = r.WantsMoreHelpAlt
	}
	if flag == nil {
		return CloserDecision{}, fmt.Errorf("%w: wants_more_help missing", ErrUnparseable)
	}

	s := strings.Trim(strings.TrimSpace(string(*flag)), `"`)
	wants, err := strconv.ParseBool(s)
	if err != nil {
		return CloserDecision{}, fmt.Errorf("%w: wants_more_help %s", ErrUnparseable, s)
	}
	return CloserDecision{WantsMoreHelp: wants, Reply: strings.TrimSpace(r.SuggestedResponse)}, nil
}

// ParseMessage extracts a non-empty message from a raw model reply.
func ParseMessage(raw string) (string, error) {
	var r struct {
		Message string `json:"message"`
	}
	if err := decodeObject(raw, &r); err != nil {
		return "", err
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return "", fmt.Errorf("%w: empty message", ErrUnparseable)
	}
	return msg, nil
}
