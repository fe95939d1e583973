package chat

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// state holds the process-wide shared registry data: every live
// session, the name → session map (named sessions only) and the
// room → member-set map. It is owned exclusively by the Run goroutine,
// so handlers mutate it without locking and every context switch is
// atomic from other sessions' viewpoint.
type state struct {
	sessions map[uuid.UUID]*Session
	users    map[string]*Session
	rooms    map[string]map[uuid.UUID]*Session
}

type Registry struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *slog.Logger
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events: make(chan Event, buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

func (r *Registry) Events() chan<- Event {
	return r.events
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)

	st := &state{
		sessions: make(map[uuid.UUID]*Session),
		users:    make(map[string]*Session),
		rooms:    make(map[string]map[uuid.UUID]*Session),
	}

	for {
		select {
		case ev := <-r.events:
			if r.stale(st, ev) {
				continue
			}

			start := time.Now()

			switch ev.Type {
			case EventAttach:
				r.handleAttach(st, ev)
			case EventSetName:
				r.handleSetName(st, ev)
			case EventJoin:
				r.handleJoin(st, ev)
			case EventPV:
				r.handlePV(st, ev)
			case EventLeave:
				r.handleLeave(st, ev)
			case EventWhereAmI:
				r.handleWhereAmI(st, ev)
			case EventRooms:
				r.handleRooms(st, ev)
			case EventUsers:
				r.handleUsers(st, ev)
			case EventChat:
				r.handleChat(st, ev)
			case EventDetach:
				r.handleDetach(st, ev)
			}

			MessagesTotal.WithLabelValues(ev.Type.String()).Inc()
			EventProcessingDuration.WithLabelValues(ev.Type.String()).Observe(time.Since(start).Seconds())
			ConnectedSessions.Set(float64(len(st.sessions)))
			ActiveRooms.Set(float64(len(st.rooms)))
		case <-r.stopCh:
			return
		}
	}
}

// stale reports whether ev refers to a session that has already been
// torn down. A session's reader and writer emit independently, so a
// line parsed before the conn died can trail the detach; such events
// must not touch the closed Out channel or re-enter the maps. A
// pending set_name still gets its reply so the reader is never left
// blocked.
func (r *Registry) stale(st *state, ev Event) bool {
	if ev.Type == EventAttach || ev.Type == EventDetach {
		return false
	}
	if _, ok := st.sessions[ev.Session.ID]; ok {
		return false
	}
	if ev.ReplyChan != nil {
		ev.ReplyChan <- ErrSessionGone
		close(ev.ReplyChan)
	}
	return true
}

func (r *Registry) handleAttach(st *state, ev Event) {
	st.sessions[ev.Session.ID] = ev.Session
	sendLine(ev.Session, "Welcome! Please enter your name: ")
}

func (r *Registry) handleSetName(st *state, ev Event) {
	defer func() {
		// ReplyChan is only used for set_name.
		if ev.ReplyChan != nil {
			close(ev.ReplyChan)
		}
	}()

	s := ev.Session
	name := ev.Arg
	if _, exists := st.users[name]; exists {
		sendLine(s, "Name already taken. Try another: ")
		if ev.ReplyChan != nil {
			ev.ReplyChan <- ErrNameTaken
		}
		return
	}

	s.Name = name
	st.users[name] = s

	r.logger.Info("user named", "session", s.ID, "name", name)

	sendLine(s, "Hi "+s.Label()+"! Commands: /join <room>, /pv <user>, /leave, /whereami, /rooms, /users")
	// Targets every named session; the newcomer is already registered
	// and receives its own join notice.
	broadcastServer(st, s.Label()+" joined the server.")

	if ev.ReplyChan != nil {
		ev.ReplyChan <- nil
	}
}

func (r *Registry) handleJoin(st *state, ev Event) {
	s := ev.Session
	room := ev.Arg

	r.leaveCurrent(st, s)
	s.Mode = ModeRoom
	s.Room = room

	members, ok := st.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Session)
		st.rooms[room] = members
	}
	members[s.ID] = s

	broadcastRoom(st, room, s, s.Label()+" joined room "+room+".")
	sendLine(s, "You are now in room "+room+". Type to chat here.")
}

func (r *Registry) handlePV(st *state, ev Event) {
	s := ev.Session
	target := ev.Arg

	// Validation failures leave the current context untouched.
	if _, ok := st.users[target]; !ok {
		sendLine(s, "User not found.")
		return
	}
	if target == s.Name {
		sendLine(s, "You cannot start PV with yourself.")
		return
	}

	r.leaveCurrent(st, s)
	s.Mode = ModePV
	s.Peer = target
	sendLine(s, "Private chat with "+target+" started. Type to chat.")
}

func (r *Registry) handleLeave(st *state, ev Event) {
	r.leaveCurrent(st, ev.Session)
	sendLine(ev.Session, "You left all contexts. Mode: none.")
}

func (r *Registry) handleWhereAmI(st *state, ev Event) {
	s := ev.Session
	switch s.Mode {
	case ModeRoom:
		sendLine(s, "You are in room: "+s.Room)
	case ModePV:
		sendLine(s, "You are in pv with: "+s.Peer)
	default:
		sendLine(s, "You are in: none")
	}
}

func (r *Registry) handleRooms(st *state, ev Event) {
	names := lo.Keys(st.rooms)
	sort.Strings(names)

	lines := make([]string, 0, len(names)+1)
	lines = append(lines, "Rooms:")
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s (%d users)", name, len(st.rooms[name])))
	}
	sendLine(ev.Session, strings.Join(lines, "\n"))
}

func (r *Registry) handleUsers(st *state, ev Event) {
	names := lo.Keys(st.users)
	sort.Strings(names)

	lines := make([]string, 0, len(names)+1)
	lines = append(lines, "Users:")
	for _, name := range names {
		lines = append(lines, "- "+name)
	}
	sendLine(ev.Session, strings.Join(lines, "\n"))
}

func (r *Registry) handleChat(st *state, ev Event) {
	s := ev.Session
	switch s.Mode {
	case ModeRoom:
		broadcastRoom(st, s.Room, s, s.Label()+" ["+s.Room+"]: "+ev.Arg)
	case ModePV:
		sendPV(st, s, ev.Arg)
	default:
		sendLine(s, "You are not in a room or pv. Use /join <room> or /pv <user>")
	}
}

// handleDetach runs the one-time teardown: the session leaves every
// registry structure, its former room (if still populated) hears a
// departure notice and, if it was named, the server-wide leave notice
// goes out. The reader and writer can both report the same dead
// connection; a second detach finds the session already gone and does
// nothing.
func (r *Registry) handleDetach(st *state, ev Event) {
	s := ev.Session
	if _, ok := st.sessions[s.ID]; !ok {
		return
	}
	delete(st.sessions, s.ID)

	if s.Name != "" && st.users[s.Name] == s {
		delete(st.users, s.Name)
	}

	r.leaveCurrent(st, s)

	if s.Name != "" {
		broadcastServer(st, s.Label()+" left the server.")
	}

	r.logger.Info("session closed", "session", s.ID, "name", s.Name)

	// Closing Out stops the writer goroutine gracefully; closing the
	// conn cancels any outstanding read.
	close(s.Out)
	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}

// leaveCurrent detaches s from its routing context. A room departure is
// announced to the remaining members; a room left empty is dropped so
// it no longer appears in listings. A pv context is only an address
// held by s, so it is simply cleared.
func (r *Registry) leaveCurrent(st *state, s *Session) {
	if s.Mode == ModeRoom && s.Room != "" {
		if members, ok := st.rooms[s.Room]; ok {
			delete(members, s.ID)
			if len(members) == 0 {
				delete(st.rooms, s.Room)
			} else {
				broadcastRoom(st, s.Room, s, s.Label()+" left room "+s.Room+".")
			}
		}
	}
	s.Mode = ModeNone
	s.Room = ""
	s.Peer = ""
}
