package core

// EventKind is a notification the session emits to its views.
type EventKind int

const (
	// EventMessage delivers one message appended from an inbound frame.
	EventMessage EventKind = iota
	// EventHistory delivers the seeded history once it has loaded.
	EventHistory
	// EventStateChanged reports a lifecycle transition.
	EventStateChanged
	// EventNotice carries a user-facing notice.
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventHistory:
		return "history"
	case EventStateChanged:
		return "state_changed"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// NoticeKind classifies user-facing notices.
type NoticeKind int

const (
	// NoticeLoginRequired asks the caller to send the user through login again.
	NoticeLoginRequired NoticeKind = iota
	// NoticeRetriesExhausted is raised once when the reconnect cap is hit.
	NoticeRetriesExhausted
	// NoticeSendFailed is raised when a publish fails on a connected channel.
	NoticeSendFailed
)

// Notice is a short message meant for the user, not for logs.
type Notice struct {
	Kind NoticeKind
	Text string
	Code string
}

// Event is sent to views to describe what happened in the session.
type Event struct {
	Kind     EventKind
	Room     string
	Message  Message   // EventMessage
	Messages []Message // EventHistory
	State    *StateEvent
	Notice   *Notice
}
