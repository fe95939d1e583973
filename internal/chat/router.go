package chat

// Fan-out and delivery. Everything here runs on the registry goroutine,
// so iterating the shared maps needs no locking.

// sendLine queues one line for asynchronous delivery to s. Non-blocking
// send prevents slow/disconnected clients from blocking the registry.
func sendLine(s *Session, line string) {
	select {
	case s.Out <- line:
	default:
		// Drop when the client is slow; backpressure by discard.
	}
}

// broadcastServer delivers line to every named session. Unnamed
// sessions are not part of any fan-out set; they only receive direct
// prompts.
func broadcastServer(st *state, line string) {
	for _, s := range st.users {
		sendLine(s, line)
	}
}

// broadcastRoom delivers line to every member of room except the actor.
func broadcastRoom(st *state, room string, actor *Session, line string) {
	members, ok := st.rooms[room]
	if !ok {
		return
	}
	for id, s := range members {
		if id == actor.ID {
			continue
		}
		sendLine(s, line)
	}
}

// sendPV routes a private message to the peer addressed by the sender's
// context. The peer gets the message plus a notification line; if the
// peer has gone offline, only the sender hears about it.
func sendPV(st *state, from *Session, text string) {
	peer, ok := st.users[from.Peer]
	if !ok {
		sendLine(from, "User went offline.")
		return
	}
	sendLine(peer, from.Label()+" (PV): "+text)
	sendLine(peer, "You have new message in pv "+from.Name)
}
