package chat

import (
	"bufio"
	"net"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundWriter_WritesQueuedLines(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	s := NewSession(server, color.FgCyan)
	events := make(chan Event, 4)
	StartOutboundWriter(s, events)

	s.Out <- "first"
	s.Out <- "second"

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "first\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "second\n", line)

	// Closing Out stops the writer, which reports a (harmless,
	// idempotent) detach for its own session.
	close(s.Out)
	assert.Equal(t, EventDetach, nextEvent(t, events).Type)
}

func TestOutboundWriter_FailureDetachesOwnSession(t *testing.T) {
	client, server := net.Pipe()

	s := NewSession(server, color.FgCyan)
	events := make(chan Event, 4)
	StartOutboundWriter(s, events)

	// Kill the peer side; the next delivery attempt must tear down this
	// session, not whoever queued the message.
	require.NoError(t, client.Close())
	s.Out <- "unreachable"

	ev := nextEvent(t, events)
	assert.Equal(t, EventDetach, ev.Type)
	assert.Same(t, s, ev.Session)
}
