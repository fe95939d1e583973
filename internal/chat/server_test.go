package chat

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

func TestServer_EndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", logger)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	addr := srv.Addr().String()

	alice := dialClient(t, addr)
	alice.expect(t, "Welcome! Please enter your name:")
	alice.send(t, "Alice")
	alice.expect(t, "Hi Alice! Commands:")

	bob := dialClient(t, addr)
	bob.expect(t, "Welcome! Please enter your name:")
	bob.send(t, "Bob")
	bob.expect(t, "Hi Bob! Commands:")
	alice.expect(t, "Bob joined the server.")

	alice.send(t, "/join lobby")
	alice.expect(t, "You are now in room lobby.")
	bob.send(t, "/join lobby")
	bob.expect(t, "You are now in room lobby.")
	alice.expect(t, "Bob joined room lobby.")

	alice.send(t, "hello")
	got := bob.expect(t, "Alice [lobby]:")
	if got != "Alice [lobby]: hello" {
		t.Fatalf("unexpected room chat line: %q", got)
	}

	bob.send(t, "/rooms")
	bob.expect(t, "Rooms:")
	got = bob.expect(t, "- lobby")
	if got != "- lobby (2 users)" {
		t.Fatalf("unexpected rooms line: %q", got)
	}

	// A second client claiming a live name is re-prompted, not registered.
	carol := dialClient(t, addr)
	carol.expect(t, "Welcome! Please enter your name:")
	carol.send(t, "Bob")
	carol.expect(t, "Name already taken. Try another:")
	carol.send(t, "Carol")
	carol.expect(t, "Hi Carol! Commands:")

	// Abrupt disconnect: the room hears the departure, the server-wide
	// notice follows, and the roster shrinks.
	if err := alice.conn.Close(); err != nil {
		t.Fatalf("close alice: %v", err)
	}
	bob.expect(t, "Alice left room lobby.")
	bob.expect(t, "Alice left the server.")

	bob.send(t, "/rooms")
	bob.expect(t, "Rooms:")
	got = bob.expect(t, "- lobby")
	if got != "- lobby (1 users)" {
		t.Fatalf("unexpected rooms line after disconnect: %q", got)
	}

	// The freed name is usable again.
	dave := dialClient(t, addr)
	dave.expect(t, "Welcome! Please enter your name:")
	dave.send(t, "Alice")
	dave.expect(t, "Hi Alice! Commands:")
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

// expect reads lines until one starts with prefix, skipping unrelated
// traffic (join notices for other clients and the like).
func (c *testClient) expect(t *testing.T, prefix string) string {
	t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			t.Fatalf("waiting for %q: %v", prefix, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
}
