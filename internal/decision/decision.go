// Package decision turns conversation context into the structured choices the
// orchestrator's agents act on. Model output is parsed defensively: anything
// that does not carry the required fields becomes an explicit failure.
package decision

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/caseflow/internal/engine"
)

// ErrUnparseable reports a model reply that is missing required fields.
var ErrUnparseable = errors.New("unparseable decision")

const defaultTimeout = 20 * time.Second

// Chatter is the subset of engine.Engine the decider needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Context is what every decision sees about the conversation.
type Context struct {
	ProductContext string
	// History is the transcript, oldest first, as user/assistant turns.
	History []engine.Message
	// Profile holds known customer attributes.
	Profile map[string]string
}

// Decider asks the configured model for agent decisions.
type Decider struct {
	chat    Chatter
	model   string
	timeout time.Duration
}

// New creates a Decider. A zero timeout uses the default.
func New(chat Chatter, model string, timeout time.Duration) *Decider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Decider{chat: chat, model: model, timeout: timeout}
}

func (d *Decider) ask(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.chat.Chat(ctx, d.model, messages, schema)
}
