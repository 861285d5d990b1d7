package wizard

import "time"

// State is the position of a user inside a multi-step input flow.
type State int

const (
	StateIdle State = iota
	StateAwaitChannelHandle
	StateAwaitImage
	StateAwaitTimeOfDay
	StateAwaitEditField
	StateAwaitNewTimeOfDay
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitChannelHandle:
		return "await_channel_handle"
	case StateAwaitImage:
		return "await_image"
	case StateAwaitTimeOfDay:
		return "await_time_of_day"
	case StateAwaitEditField:
		return "await_edit_field"
	case StateAwaitNewTimeOfDay:
		return "await_new_time_of_day"
	default:
		return "unknown"
	}
}

// Draft accumulates the fields collected so far. Which fields are meaningful
// depends on the state: ChannelID/ImageRef/Caption drive post creation,
// PostID drives the edit flows.
type Draft struct {
	ChannelID int64
	ImageRef  string
	Caption   string
	PostID    int64
}

// Session is one user's ephemeral wizard progress. Exactly one session
// exists per user; entering any wizard overwrites a stale one.
type Session struct {
	UserID  int64
	State   State
	Draft   Draft
	Touched time.Time
}
