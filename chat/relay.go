// Package chat relays browser messages to a generative-AI completion
// endpoint, maintaining a rolling conversation history.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// maxHistoryTurns bounds the rolling history. When exceeded, the oldest
// turns are dropped.
const maxHistoryTurns = 64

// Completer produces an assistant reply for a message given the prior
// conversation.
type Completer interface {
	Complete(ctx context.Context, history []interfaces.ChatTurn, message string) (string, error)
}

// Relay owns the conversation history and forwards messages to a Completer.
// Safe for concurrent use.
type Relay struct {
	completer Completer
	log       *slog.Logger

	mu      sync.Mutex
	history []interfaces.ChatTurn
}

// NewRelay creates a relay backed by the given completer.
func NewRelay(completer Completer, log *slog.Logger) *Relay {
	return &Relay{completer: completer, log: log}
}

// Send forwards a user message to the completer and records both the user
// turn and the assistant reply. An empty (or all-whitespace) message is
// rejected without touching the history or the upstream. If the completer
// fails, the user turn is not recorded either.
func (r *Relay) Send(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", interfaces.ErrEmptyMessage
	}

	r.mu.Lock()
	prior := make([]interfaces.ChatTurn, len(r.history))
	copy(prior, r.history)
	r.mu.Unlock()

	reply, err := r.completer.Complete(ctx, prior, message)
	if err != nil {
		r.log.Warn("Completion failed", "err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrUpstream, err)
	}

	r.mu.Lock()
	r.history = append(r.history,
		interfaces.ChatTurn{Role: interfaces.RoleUser, Content: message},
		interfaces.ChatTurn{Role: interfaces.RoleAssistant, Content: reply},
	)
	if len(r.history) > maxHistoryTurns {
		r.history = r.history[len(r.history)-maxHistoryTurns:]
	}
	r.mu.Unlock()

	return reply, nil
}

// Reset discards the conversation history.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
	r.log.Debug("Chat history reset")
}

// History returns a snapshot of the conversation so far.
func (r *Relay) History() []interfaces.ChatTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interfaces.ChatTurn, len(r.history))
	copy(out, r.history)
	return out
}
