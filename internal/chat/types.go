package chat

// Mode is a session's routing context. A session is in at most one room
// or one private chat at a time, never both.
type Mode int

const (
	ModeNone Mode = iota
	ModeRoom
	ModePV
)

func (m Mode) String() string {
	switch m {
	case ModeRoom:
		return "room"
	case ModePV:
		return "pv"
	default:
		return "none"
	}
}

type EventType int

const (
	EventAttach EventType = iota
	EventSetName
	EventJoin
	EventPV
	EventLeave
	EventWhereAmI
	EventRooms
	EventUsers
	EventChat
	EventDetach
)

func (t EventType) String() string {
	switch t {
	case EventAttach:
		return "attach"
	case EventSetName:
		return "set_name"
	case EventJoin:
		return "join"
	case EventPV:
		return "pv"
	case EventLeave:
		return "leave"
	case EventWhereAmI:
		return "whereami"
	case EventRooms:
		return "rooms"
	case EventUsers:
		return "users"
	case EventChat:
		return "chat"
	case EventDetach:
		return "detach"
	default:
		return "unknown"
	}
}

type Event struct {
	Type    EventType
	Session *Session

	// Arg carries the event payload: the desired name for set_name, the
	// room for join, the target user for pv, the text for chat.
	Arg string

	ReplyChan chan error // used by set_name to ack success/failure
}

var (
	ErrNameTaken   = errorString("name_taken")
	ErrSessionGone = errorString("session_gone")
)

type errorString string

func (e errorString) Error() string { return string(e) }
