package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter echoes the message back, or fails when err is set.
type fakeCompleter struct {
	err   error
	calls int
	// history seen on the last call
	lastHistory []interfaces.ChatTurn
}

func (f *fakeCompleter) Complete(ctx context.Context, history []interfaces.ChatTurn, message string) (string, error) {
	f.calls++
	f.lastHistory = history
	if f.err != nil {
		return "", f.err
	}
	return "echo: " + message, nil
}

func testRelay(completer Completer) *Relay {
	return NewRelay(completer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRelay_SendAppendsTurnPair(t *testing.T) {
	relay := testRelay(&fakeCompleter{})
	relay.Reset()

	reply, err := relay.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)

	history := relay.History()
	require.Len(t, history, 2)
	assert.Equal(t, interfaces.ChatTurn{Role: interfaces.RoleUser, Content: "hello"}, history[0])
	assert.Equal(t, interfaces.ChatTurn{Role: interfaces.RoleAssistant, Content: "echo: hello"}, history[1])
}

func TestRelay_EmptyMessage(t *testing.T) {
	completer := &fakeCompleter{}
	relay := testRelay(completer)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := relay.Send(context.Background(), msg)
		assert.ErrorIs(t, err, interfaces.ErrEmptyMessage)
	}
	assert.Zero(t, completer.calls)
	assert.Empty(t, relay.History())
}

func TestRelay_UpstreamFailureLeavesHistoryUntouched(t *testing.T) {
	completer := &fakeCompleter{}
	relay := testRelay(completer)

	_, err := relay.Send(context.Background(), "first")
	require.NoError(t, err)

	completer.err = errors.New("model unavailable")
	_, err = relay.Send(context.Background(), "second")
	assert.ErrorIs(t, err, interfaces.ErrUpstream)

	history := relay.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
}

func TestRelay_Reset(t *testing.T) {
	relay := testRelay(&fakeCompleter{})

	_, err := relay.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, relay.History())

	relay.Reset()
	assert.Empty(t, relay.History())
}

func TestRelay_HistoryBound(t *testing.T) {
	relay := testRelay(&fakeCompleter{})

	for i := 0; i < maxHistoryTurns; i++ {
		_, err := relay.Send(context.Background(), fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	history := relay.History()
	require.Len(t, history, maxHistoryTurns)
	// The oldest turns are dropped, keeping the most recent ones.
	assert.Equal(t, fmt.Sprintf("message %d", maxHistoryTurns/2), history[0].Content)
	assert.Equal(t, "echo: message 63", history[len(history)-1].Content)
}

func TestRelay_CompleterSeesPriorHistoryOnly(t *testing.T) {
	completer := &fakeCompleter{}
	relay := testRelay(completer)

	_, err := relay.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = relay.Send(context.Background(), "two")
	require.NoError(t, err)

	require.Len(t, completer.lastHistory, 2)
	assert.Equal(t, "one", completer.lastHistory[0].Content)
}

func TestRelay_HistorySnapshotIsCopy(t *testing.T) {
	relay := testRelay(&fakeCompleter{})

	_, err := relay.Send(context.Background(), "hello")
	require.NoError(t, err)

	snapshot := relay.History()
	snapshot[0].Content = "mutated"

	assert.Equal(t, "hello", relay.History()[0].Content)
}
