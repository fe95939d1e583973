package chat

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/gookit/color"
)

// Session is the server-side half of one client connection. The read
// loop and writer goroutine touch only ID, Conn, Out and Color; the
// identity and routing-context fields are owned by the registry
// goroutine once the session is attached.
type Session struct {
	ID    uuid.UUID
	Conn  net.Conn
	Out   chan string // outbound lines to be written by the writer goroutine
	Color color.Color

	Name string
	Mode Mode
	Room string // set iff Mode == ModeRoom
	Peer string // set iff Mode == ModePV
}

func NewSession(conn net.Conn, c color.Color) *Session {
	return &Session{
		ID:    uuid.New(),
		Conn:  conn,
		Out:   make(chan string, 32),
		Color: c,
	}
}

// Label renders the session's display name in its cosmetic color.
func (s *Session) Label() string {
	return s.Color.Render(s.Name)
}

// HandleSession runs the per-connection read loop: naming handshake
// first, then command/chat dispatch. All state changes go through the
// events channel; the loop itself never touches shared state.
func HandleSession(s *Session, events chan<- Event) {
	defer func() {
		_ = s.Conn.Close()
	}()

	StartOutboundWriter(s, events)

	events <- Event{Type: EventAttach, Session: s}

	reader := bufio.NewReader(s.Conn)

	// Naming handshake: the first non-empty line is the desired name,
	// rejected only on collision with a live session.
	for {
		line, err := readLine(reader)
		if err != nil {
			events <- Event{Type: EventDetach, Session: s}
			return
		}
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}

		reply := make(chan error, 1)
		events <- Event{Type: EventSetName, Session: s, Arg: name, ReplyChan: reply}
		if <-reply == nil {
			break
		}
		// Collision. The registry already re-prompted; read again.
	}

	// Main input loop. Commands are case-sensitive literals; anything
	// else is chat text routed per the session's current mode.
	for {
		line, err := readLine(reader)
		if err != nil {
			events <- Event{Type: EventDetach, Session: s}
			return
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/join "):
			events <- Event{Type: EventJoin, Session: s, Arg: line[len("/join "):]}
		case strings.HasPrefix(line, "/pv "):
			events <- Event{Type: EventPV, Session: s, Arg: line[len("/pv "):]}
		case line == "/leave":
			events <- Event{Type: EventLeave, Session: s}
		case line == "/whereami":
			events <- Event{Type: EventWhereAmI, Session: s}
		case line == "/rooms":
			events <- Event{Type: EventRooms, Session: s}
		case line == "/users":
			events <- Event{Type: EventUsers, Session: s}
		default:
			events <- Event{Type: EventChat, Session: s, Arg: line}
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
