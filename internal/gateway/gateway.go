package gateway

import (
	"context"
	"errors"
)

var (
	// ErrChannelNotFound means the handle did not resolve to a channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNotAdmin means the bot is not an administrator of the channel.
	ErrNotAdmin = errors.New("bot is not an admin of the channel")
)

// ChannelInfo is the resolved identity of a channel handle.
type ChannelInfo struct {
	ID          int64
	DisplayName string
}

// Gateway is the messaging platform seen from the core: it resolves channel
// handles (verifying the bot's admin rights) and delivers scheduled images.
// ImageRef is opaque to callers; the platform resolves it at send time.
type Gateway interface {
	ResolveChannel(ctx context.Context, handle string) (ChannelInfo, error)
	SendImage(ctx context.Context, channelID int64, imageRef, caption string) error
}
