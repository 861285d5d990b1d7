package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"autopost/internal/storage"
	kit "autopost/internal/transport"
	"autopost/internal/wizard"
	logx "autopost/pkg/logx"
	"autopost/pkg/tgui"
)

// Router maps inbound updates to wizard transitions and store actions.
// It is deliberately thin: all state lives in the wizard's session table
// and the store.
type Router struct {
	ad    kit.Adapter
	store storage.Store
	wiz   *wizard.Manager
	log   logx.Logger
}

func NewRouter(ad kit.Adapter, store storage.Store, wiz *wizard.Manager, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{ad: ad, store: store, wiz: wiz, log: log}
}

// DispatchLoop consumes updates until ctx is done. Individual handler
// failures are logged and never break the loop.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			switch up.Kind {
			case kit.UpdateMessage:
				if up.Message != nil {
					r.handleMessage(ctx, up.Message)
				}
			case kit.UpdatePhoto:
				if up.Message != nil {
					r.handlePhoto(ctx, up.Message)
				}
			case kit.UpdateCallback:
				if up.Callback != nil {
					r.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) {
	if text == "" {
		return
	}
	if err := r.ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, m, text)
		return
	}
	r.reply(ctx, m.ChatID, r.wiz.HandleText(ctx, m.FromID, text), nil)
}

func (r *Router) handlePhoto(ctx context.Context, m *kit.Message) {
	r.reply(ctx, m.ChatID, r.wiz.HandlePhoto(ctx, m.FromID, m.ImageRef, m.Caption), nil)
}

func (r *Router) handleCommand(ctx context.Context, m *kit.Message, cmd string) {
	// Strip a trailing @botname so commands work in groups too.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		r.sendMainMenu(ctx, m.ChatID)
	case "/cancel":
		r.reply(ctx, m.ChatID, r.wiz.Cancel(m.FromID), nil)
	default:
		// Unknown commands are ignored.
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	if err := r.ad.AnswerCallback(ctx, cb.ID); err != nil {
		r.log.Debug("callback ack failed", logx.Err(err))
	}

	data := cb.Data
	switch {
	case data == "add_channel":
		r.reply(ctx, cb.ChatID, r.wiz.BeginChannelRegistration(cb.FromID), nil)

	case data == "list_channels":
		r.sendChannelList(ctx, cb.ChatID)

	case strings.HasPrefix(data, "channel_"):
		id, ok := parseID(data, "channel_")
		if !ok {
			return
		}
		r.wiz.SelectChannel(cb.FromID, id)
		r.sendChannelMenu(ctx, cb.ChatID, id)

	case data == "add_post":
		r.reply(ctx, cb.ChatID, r.wiz.BeginPostCreation(cb.FromID, r.wiz.ChannelDraft(cb.FromID)), nil)

	case data == "view_posts":
		r.sendPostList(ctx, cb.ChatID, r.wiz.ChannelDraft(cb.FromID))

	case strings.HasPrefix(data, "post_"):
		id, ok := parseID(data, "post_")
		if !ok {
			return
		}
		r.sendPostMenu(ctx, cb.ChatID, id)

	case strings.HasPrefix(data, "edittime_"):
		id, ok := parseID(data, "edittime_")
		if !ok {
			return
		}
		r.reply(ctx, cb.ChatID, r.wiz.BeginTimeEdit(cb.FromID, id), nil)

	case strings.HasPrefix(data, "editcap_"):
		id, ok := parseID(data, "editcap_")
		if !ok {
			return
		}
		r.reply(ctx, cb.ChatID, r.wiz.BeginCaptionEdit(cb.FromID, id), nil)

	case strings.HasPrefix(data, "delpost_"):
		id, ok := parseID(data, "delpost_")
		if !ok {
			return
		}
		// Direct operation: immediate delete, no confirmation step.
		if err := r.store.DeletePost(ctx, id); err != nil {
			r.log.Warn("post delete failed", logx.Int64("post", id), logx.Err(err))
			r.reply(ctx, cb.ChatID, "⚠️ Could not delete the post", nil)
			return
		}
		r.reply(ctx, cb.ChatID, "🗑 Post deleted", nil)

	case data == "back":
		r.sendMainMenu(ctx, cb.ChatID)
	}
}

// ---- menus ----

func (r *Router) sendMainMenu(ctx context.Context, chatID int64) {
	kb := tgui.NewInline().
		Row(tgui.Btn("➕ Add Channel", "add_channel")).
		Row(tgui.Btn("📋 My Channels", "list_channels"))
	r.reply(ctx, chatID, "🔹 Auto Post Scheduler\n\nSelect option:", &kit.SendOptions{ReplyMarkup: kb.Markup()})
}

func (r *Router) sendChannelList(ctx context.Context, chatID int64) {
	channels, err := r.store.ListChannels(ctx)
	if err != nil {
		r.log.Warn("channel list failed", logx.Err(err))
		r.reply(ctx, chatID, "⚠️ Could not load channels", nil)
		return
	}
	if len(channels) == 0 {
		r.reply(ctx, chatID, "❌ No channels added", nil)
		return
	}
	kb := tgui.NewInline()
	for _, ch := range channels {
		kb.Row(tgui.Btn(ch.DisplayName, fmt.Sprintf("channel_%d", ch.ID)))
	}
	r.reply(ctx, chatID, "📢 Select channel:", &kit.SendOptions{ReplyMarkup: kb.Markup()})
}

func (r *Router) sendChannelMenu(ctx context.Context, chatID, channelID int64) {
	title := "📌 Channel menu:"
	if ch, ok, err := r.store.GetChannel(ctx, channelID); err == nil && ok {
		title = fmt.Sprintf("📌 %s:", ch.DisplayName)
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("🖼 Add Post", "add_post")).
		Row(tgui.Btn("📋 View Posts", "view_posts")).
		Row(tgui.Btn("⬅ Back", "back"))
	r.reply(ctx, chatID, title, &kit.SendOptions{ReplyMarkup: kb.Markup()})
}

func (r *Router) sendPostList(ctx context.Context, chatID, channelID int64) {
	if channelID == 0 {
		r.reply(ctx, chatID, "❌ Select a channel first", nil)
		return
	}
	posts, err := r.store.ListPosts(ctx, channelID)
	if err != nil {
		r.log.Warn("post list failed", logx.Int64("channel", channelID), logx.Err(err))
		r.reply(ctx, chatID, "⚠️ Could not load posts", nil)
		return
	}
	if len(posts) == 0 {
		r.reply(ctx, chatID, "❌ No posts found", nil)
		return
	}
	kb := tgui.NewInline()
	for _, p := range posts {
		kb.Row(tgui.Btn(fmt.Sprintf("⏰ %s — %s", p.TimeOfDay, truncate(p.Caption, 30)), fmt.Sprintf("post_%d", p.ID)))
	}
	r.reply(ctx, chatID, "📋 Scheduled posts:", &kit.SendOptions{ReplyMarkup: kb.Markup()})
}

func (r *Router) sendPostMenu(ctx context.Context, chatID, postID int64) {
	p, ok, err := r.store.GetPost(ctx, postID)
	if err != nil || !ok {
		r.reply(ctx, chatID, "❌ Post not found", nil)
		return
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("⏰ Edit time", fmt.Sprintf("edittime_%d", p.ID)),
			tgui.Btn("✏️ Edit caption", fmt.Sprintf("editcap_%d", p.ID))).
		Row(tgui.Btn("🗑 Delete", fmt.Sprintf("delpost_%d", p.ID))).
		Row(tgui.Btn("⬅ Back", "view_posts"))
	text := fmt.Sprintf("⏰ %s\n%s", p.TimeOfDay, truncate(p.Caption, 200))
	r.reply(ctx, chatID, text, &kit.SendOptions{ReplyMarkup: kb.Markup()})
}

func parseID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil && id != 0
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
