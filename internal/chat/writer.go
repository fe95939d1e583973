package chat

import "bufio"

// StartOutboundWriter drains s.Out onto the connection, one line per
// message. A write failure means this session's own connection is dead,
// so the writer reports s for teardown: a failed delivery to a receiver
// cleans up the receiver, never the sender whose message it carried.
func StartOutboundWriter(s *Session, events chan<- Event) {
	go func() {
		w := bufio.NewWriter(s.Conn)
		for msg := range s.Out {
			if _, err := w.WriteString(msg + "\n"); err != nil {
				break
			}
			if err := w.Flush(); err != nil {
				break
			}
		}
		// Out was closed by cleanup, or the conn broke mid-write.
		// Either way a detach is safe: cleanup is idempotent.
		events <- Event{Type: EventDetach, Session: s}
	}()
}
