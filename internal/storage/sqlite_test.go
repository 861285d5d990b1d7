package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "autopost/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "autopost.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestValidTimeOfDay(t *testing.T) {
	t.Parallel()
	valid := []string{"00:00", "08:00", "09:05", "19:59", "23:59"}
	for _, s := range valid {
		if !ValidTimeOfDay(s) {
			t.Errorf("ValidTimeOfDay(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "24:00", "9:5", "9:50", "09:5", "abc", "08:60", "08:00 ", "0800", "08-00", "108:00"}
	for _, s := range invalid {
		if ValidTimeOfDay(s) {
			t.Errorf("ValidTimeOfDay(%q) = true, want false", s)
		}
	}
}

func TestUpsertChannelIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertChannel(ctx, Channel{ID: 555, DisplayName: "My Channel"}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	// Second registration is a no-op, not an error.
	if err := st.UpsertChannel(ctx, Channel{ID: 555, DisplayName: "My Channel"}); err != nil {
		t.Fatalf("UpsertChannel (dup): %v", err)
	}

	channels, err := st.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(channels))
	}
	if channels[0].ID != 555 || channels[0].DisplayName != "My Channel" {
		t.Fatalf("unexpected channel: %+v", channels[0])
	}
}

func TestInsertPostValidation(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.InsertPost(ctx, Post{ChannelID: 1, ImageRef: "f", TimeOfDay: "25:00", RepeatDaily: true}); !errors.Is(err, ErrBadTimeOfDay) {
		t.Fatalf("bad time: err = %v, want ErrBadTimeOfDay", err)
	}
	// channel_id must reference an existing channel.
	if _, err := st.InsertPost(ctx, Post{ChannelID: 42, ImageRef: "f", TimeOfDay: "08:00", RepeatDaily: true}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("unknown channel: err = %v, want ErrUnknownChannel", err)
	}
}

func TestPostLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertChannel(ctx, Channel{ID: 1, DisplayName: "One"}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertChannel(ctx, Channel{ID: 2, DisplayName: "Two"}); err != nil {
		t.Fatal(err)
	}

	a, err := st.InsertPost(ctx, Post{ChannelID: 1, ImageRef: "img-a", Caption: "morning", TimeOfDay: "08:00", RepeatDaily: true})
	if err != nil {
		t.Fatalf("InsertPost A: %v", err)
	}
	b, err := st.InsertPost(ctx, Post{ChannelID: 2, ImageRef: "img-b", TimeOfDay: "08:01", RepeatDaily: true})
	if err != nil {
		t.Fatalf("InsertPost B: %v", err)
	}

	due, err := st.ListDuePosts(ctx, "08:00")
	if err != nil {
		t.Fatalf("ListDuePosts: %v", err)
	}
	if len(due) != 1 || due[0].ID != a {
		t.Fatalf("due at 08:00 = %+v, want exactly post %d", due, a)
	}
	due, err = st.ListDuePosts(ctx, "08:01")
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != b {
		t.Fatalf("due at 08:01 = %+v, want exactly post %d", due, b)
	}

	// Editing the time touches nothing else.
	if err := st.UpdatePostTime(ctx, a, "09:30"); err != nil {
		t.Fatalf("UpdatePostTime: %v", err)
	}
	got, ok, err := st.GetPost(ctx, a)
	if err != nil || !ok {
		t.Fatalf("GetPost: ok=%v err=%v", ok, err)
	}
	if got.TimeOfDay != "09:30" {
		t.Fatalf("TimeOfDay = %q, want 09:30", got.TimeOfDay)
	}
	if got.Caption != "morning" || got.ImageRef != "img-a" || got.ChannelID != 1 || !got.RepeatDaily {
		t.Fatalf("edit changed unrelated fields: %+v", got)
	}
	if err := st.UpdatePostTime(ctx, a, "9:5"); !errors.Is(err, ErrBadTimeOfDay) {
		t.Fatalf("UpdatePostTime bad input: err = %v, want ErrBadTimeOfDay", err)
	}

	if err := st.UpdatePostCaption(ctx, b, "evening"); err != nil {
		t.Fatalf("UpdatePostCaption: %v", err)
	}
	got, _, _ = st.GetPost(ctx, b)
	if got.Caption != "evening" || got.TimeOfDay != "08:01" {
		t.Fatalf("caption edit wrong: %+v", got)
	}

	// Deletion is immediately visible to listing and the due query.
	if err := st.DeletePost(ctx, a); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	posts, err := st.ListPosts(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 0 {
		t.Fatalf("post %d still listed after delete", a)
	}
	due, _ = st.ListDuePosts(ctx, "09:30")
	if len(due) != 0 {
		t.Fatalf("post %d still due after delete", a)
	}

	if err := st.DeletePost(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestListPostsAllChannels(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	_ = st.UpsertChannel(ctx, Channel{ID: 1, DisplayName: "One"})
	_ = st.UpsertChannel(ctx, Channel{ID: 2, DisplayName: "Two"})
	if _, err := st.InsertPost(ctx, Post{ChannelID: 1, ImageRef: "x", TimeOfDay: "10:00", RepeatDaily: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.InsertPost(ctx, Post{ChannelID: 2, ImageRef: "y", TimeOfDay: "11:00", RepeatDaily: true}); err != nil {
		t.Fatal(err)
	}

	all, err := st.ListPosts(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d posts, want 2", len(all))
	}
	one, err := st.ListPosts(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].ChannelID != 1 {
		t.Fatalf("channel filter wrong: %+v", one)
	}
}
