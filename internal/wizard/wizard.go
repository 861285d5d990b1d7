package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autopost/internal/gateway"
	"autopost/internal/metrics"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

const defaultSessionTTL = 30 * time.Minute

// Reply texts. Kept package-level so tests can assert against them.
const (
	msgAskHandle  = "👉 Send the channel @username\n\nExample:\n@mychannel"
	msgAskPhoto   = "🖼 Send a photo (caption optional)"
	msgAskTime    = "⏰ Send the time (24h format)\nExample: 08:00"
	msgAskCaption = "✏️ Send the new caption"
	msgBadTime    = "❌ Invalid time. Use HH:MM (24h), e.g. 08:00"
	msgNoChannel  = "❌ Select a channel first"
	msgNotAdmin   = "❌ Channel not found or the bot is not an admin there"
	msgCancelled  = "Cancelled."
	msgStoreError = "⚠️ Something went wrong, please try again"
)

// Manager turns a linear sequence of user inputs into validated channel and
// post records, one field at a time. It holds per-user sessions in memory,
// keyed by user ID, with an injected clock for idle expiry so the whole
// machine is testable by feeding it (state, event) pairs against fakes.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	store storage.Store
	gw    gateway.Gateway
	log   logx.Logger
	clock func() time.Time
	ttl   time.Duration
}

type Option func(*Manager)

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.clock = fn
		}
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func New(store storage.Store, gw gateway.Gateway, log logx.Logger, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		sessions: make(map[int64]*Session),
		store:    store,
		gw:       gw,
		log:      log,
		clock:    time.Now,
		ttl:      defaultSessionTTL,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// session returns the live session for userID, creating one in StateIdle if
// needed, and touches it.
func (m *Manager) session(userID int64) *Session {
	s := m.sessions[userID]
	if s == nil {
		s = &Session{UserID: userID}
		m.sessions[userID] = s
	}
	s.Touched = m.clock()
	return s
}

func (m *Manager) reset(s *Session) {
	s.State = StateIdle
	s.Draft = Draft{}
}

// StateOf reports the current state for userID (StateIdle if no session).
func (m *Manager) StateOf(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[userID]; s != nil {
		return s.State
	}
	return StateIdle
}

// ChannelDraft reports the channel currently selected in the user's draft.
func (m *Manager) ChannelDraft(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[userID]; s != nil {
		return s.Draft.ChannelID
	}
	return 0
}

// SelectChannel records the operator's channel choice in the draft without
// entering a wizard; menu navigation uses it between callbacks.
func (m *Manager) SelectChannel(userID, channelID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	s.Draft.ChannelID = channelID
}

// BeginChannelRegistration starts the register-channel flow. Any prior
// session for the user is overwritten (intentional reset).
func (m *Manager) BeginChannelRegistration(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	m.reset(s)
	s.State = StateAwaitChannelHandle
	return msgAskHandle
}

// BeginPostCreation starts the add-post flow for the selected channel.
// A non-zero channel selection is a precondition.
func (m *Manager) BeginPostCreation(userID, channelID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channelID == 0 {
		return msgNoChannel
	}
	s := m.session(userID)
	m.reset(s)
	s.State = StateAwaitImage
	s.Draft.ChannelID = channelID
	return msgAskPhoto
}

// BeginTimeEdit starts the edit-post-time flow for postID.
func (m *Manager) BeginTimeEdit(userID, postID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	m.reset(s)
	s.State = StateAwaitNewTimeOfDay
	s.Draft.PostID = postID
	return msgAskTime
}

// BeginCaptionEdit starts the edit-post-caption flow for postID.
func (m *Manager) BeginCaptionEdit(userID, postID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	m.reset(s)
	s.State = StateAwaitEditField
	s.Draft.PostID = postID
	return msgAskCaption
}

// Cancel discards the draft and returns the session to idle. No store writes.
func (m *Manager) Cancel(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	m.reset(s)
	return msgCancelled
}

// HandleText advances the wizard on a text input. The returned reply is
// empty when the input is ignored (e.g. free text while idle).
func (m *Manager) HandleText(ctx context.Context, userID int64, text string) string {
	m.mu.Lock()
	s := m.session(userID)
	state := s.State
	draft := s.Draft
	m.mu.Unlock()

	switch state {
	case StateIdle:
		// No active wizard: free text never creates or mutates anything.
		return ""

	case StateAwaitChannelHandle:
		return m.commitChannel(ctx, userID, text)

	case StateAwaitImage:
		// Still waiting for a photo; re-prompt, state unchanged.
		return msgAskPhoto

	case StateAwaitTimeOfDay:
		if !storage.ValidTimeOfDay(text) {
			// Stay in this state so the user retries without restarting.
			return msgBadTime
		}
		return m.commitPost(ctx, userID, draft, text)

	case StateAwaitNewTimeOfDay:
		// Unlike creation, the edit flow resets on a bad time instead of
		// re-prompting in place.
		if !storage.ValidTimeOfDay(text) {
			m.resetUser(userID)
			return msgBadTime
		}
		return m.commitTimeEdit(ctx, userID, draft.PostID, text)

	case StateAwaitEditField:
		return m.commitCaptionEdit(ctx, userID, draft.PostID, text)
	}
	return ""
}

// HandlePhoto advances the wizard on an incoming photo. Photos are only
// meaningful while a post wizard awaits an image; otherwise they are ignored.
func (m *Manager) HandlePhoto(ctx context.Context, userID int64, imageRef, caption string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(userID)
	if s.State != StateAwaitImage {
		return ""
	}
	s.Draft.ImageRef = imageRef
	s.Draft.Caption = caption
	s.State = StateAwaitTimeOfDay
	return msgAskTime
}

// Prune drops sessions idle longer than the TTL and returns how many.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.Touched) > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// ---- terminal transitions ----

func (m *Manager) commitChannel(ctx context.Context, userID int64, handle string) string {
	info, err := m.gw.ResolveChannel(ctx, handle)
	if err != nil {
		// Verification failure resets the session; the user re-invokes the
		// command to retry.
		m.log.Debug("channel verification failed", logx.Int64("user", userID), logx.Err(err))
		m.resetUser(userID)
		return msgNotAdmin
	}

	err = m.store.UpsertChannel(ctx, storage.Channel{ID: info.ID, DisplayName: info.DisplayName})
	m.resetUser(userID)
	if err != nil {
		m.log.Error("channel upsert failed", logx.Int64("channel", info.ID), logx.Err(err))
		return msgStoreError
	}
	metrics.WizardCommits.WithLabelValues("channel_register").Inc()
	return fmt.Sprintf("✅ Channel added: %s", info.DisplayName)
}

func (m *Manager) commitPost(ctx context.Context, userID int64, draft Draft, hhmm string) string {
	id, err := m.store.InsertPost(ctx, storage.Post{
		ChannelID:   draft.ChannelID,
		ImageRef:    draft.ImageRef,
		Caption:     draft.Caption,
		TimeOfDay:   hhmm,
		RepeatDaily: true,
	})
	m.resetUser(userID)
	if err != nil {
		m.log.Error("post insert failed", logx.Int64("channel", draft.ChannelID), logx.Err(err))
		return msgStoreError
	}
	metrics.WizardCommits.WithLabelValues("post_create").Inc()
	m.log.Info("post scheduled",
		logx.Int64("post", id), logx.Int64("channel", draft.ChannelID), logx.String("time", hhmm))
	return fmt.Sprintf("✅ Post scheduled daily at %s", hhmm)
}

func (m *Manager) commitTimeEdit(ctx context.Context, userID, postID int64, hhmm string) string {
	err := m.store.UpdatePostTime(ctx, postID, hhmm)
	m.resetUser(userID)
	if err != nil {
		m.log.Error("post time update failed", logx.Int64("post", postID), logx.Err(err))
		return msgStoreError
	}
	metrics.WizardCommits.WithLabelValues("post_edit_time").Inc()
	return fmt.Sprintf("✅ Post time updated to %s", hhmm)
}

func (m *Manager) commitCaptionEdit(ctx context.Context, userID, postID int64, caption string) string {
	err := m.store.UpdatePostCaption(ctx, postID, caption)
	m.resetUser(userID)
	if err != nil {
		m.log.Error("post caption update failed", logx.Int64("post", postID), logx.Err(err))
		return msgStoreError
	}
	metrics.WizardCommits.WithLabelValues("post_edit_caption").Inc()
	return "✅ Caption updated"
}

func (m *Manager) resetUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[userID]; s != nil {
		m.reset(s)
	}
}
