package storage

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrBadTimeOfDay   = errors.New("time of day must be HH:MM (24-hour)")
	ErrUnknownChannel = errors.New("post references an unknown channel")
)

// Channel is a messaging destination the operator administers. The ID is
// assigned by the messaging platform and stable for the channel's lifetime.
type Channel struct {
	ID          int64
	DisplayName string
}

// Post is a scheduled recurring image+caption send, owned by one channel.
//
// TimeOfDay is wall-clock "HH:MM" (24-hour) in the dispatcher's configured
// zone. RepeatDaily is always true today; it is stored so a non-repeating
// variant only needs a writer, not a schema change.
type Post struct {
	ID          int64
	ChannelID   int64
	ImageRef    string
	Caption     string
	TimeOfDay   string
	RepeatDaily bool
}

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTimeOfDay reports whether s is a strict 24-hour "HH:MM" string.
// Rejects "24:00", "9:5", empty, and anything with extra characters.
func ValidTimeOfDay(s string) bool {
	return timeOfDayRe.MatchString(s)
}

// Store is the persistence API shared by the conversation wizard (writes)
// and the dispatcher (reads). Implementations serialize individual row
// operations; no higher-level coordination is provided or required.
type Store interface {
	UpsertChannel(ctx context.Context, ch Channel) error
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannel(ctx context.Context, id int64) (Channel, bool, error)

	InsertPost(ctx context.Context, p Post) (int64, error)
	// ListPosts returns posts for one channel, or all posts when channelID is 0.
	ListPosts(ctx context.Context, channelID int64) ([]Post, error)
	// ListDuePosts returns every repeating post whose time-of-day equals hhmm.
	ListDuePosts(ctx context.Context, hhmm string) ([]Post, error)
	GetPost(ctx context.Context, id int64) (Post, bool, error)
	UpdatePostTime(ctx context.Context, id int64, hhmm string) error
	UpdatePostCaption(ctx context.Context, id int64, caption string) error
	DeletePost(ctx context.Context, id int64) error

	Close() error
}

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
