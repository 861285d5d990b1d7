package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autopost/internal/gateway"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// dueStore serves canned posts per HH:MM; everything else is unused here.
type dueStore struct {
	due map[string][]storage.Post
	err error
}

func (d *dueStore) ListDuePosts(_ context.Context, hhmm string) ([]storage.Post, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.due[hhmm], nil
}

func (d *dueStore) UpsertChannel(context.Context, storage.Channel) error { return nil }
func (d *dueStore) ListChannels(context.Context) ([]storage.Channel, error) {
	return nil, nil
}
func (d *dueStore) GetChannel(context.Context, int64) (storage.Channel, bool, error) {
	return storage.Channel{}, false, nil
}
func (d *dueStore) InsertPost(context.Context, storage.Post) (int64, error) { return 0, nil }
func (d *dueStore) ListPosts(context.Context, int64) ([]storage.Post, error) {
	return nil, nil
}
func (d *dueStore) GetPost(context.Context, int64) (storage.Post, bool, error) {
	return storage.Post{}, false, nil
}
func (d *dueStore) UpdatePostTime(context.Context, int64, string) error    { return nil }
func (d *dueStore) UpdatePostCaption(context.Context, int64, string) error { return nil }
func (d *dueStore) DeletePost(context.Context, int64) error                { return nil }
func (d *dueStore) Close() error                                           { return nil }

type sentImage struct {
	channelID int64
	imageRef  string
	caption   string
}

type recordingGateway struct {
	mu     sync.Mutex
	sent   []sentImage
	failOn map[string]error // keyed by imageRef
}

func (g *recordingGateway) SendImage(_ context.Context, channelID int64, imageRef, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOn[imageRef]; err != nil {
		return err
	}
	g.sent = append(g.sent, sentImage{channelID, imageRef, caption})
	return nil
}

func (g *recordingGateway) ResolveChannel(context.Context, string) (gateway.ChannelInfo, error) {
	return gateway.ChannelInfo{}, gateway.ErrChannelNotFound
}

func newService(t *testing.T, st *dueStore, gw *recordingGateway) *Service {
	t.Helper()
	s, err := New(Config{Enabled: true}, st, gw, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestTickDeliversExactMinute(t *testing.T) {
	t.Parallel()
	st := &dueStore{due: map[string][]storage.Post{
		"08:00": {{ID: 1, ChannelID: 10, ImageRef: "img-a", Caption: "morning", TimeOfDay: "08:00", RepeatDaily: true}},
		"08:01": {{ID: 2, ChannelID: 20, ImageRef: "img-b", TimeOfDay: "08:01", RepeatDaily: true}},
	}}
	gw := &recordingGateway{}
	s := newService(t, st, gw)
	ctx := context.Background()

	s.tickAt(ctx, "08:00")
	if len(gw.sent) != 1 {
		t.Fatalf("after 08:00 tick sent = %+v, want exactly one", gw.sent)
	}
	if got := gw.sent[0]; got.channelID != 10 || got.imageRef != "img-a" || got.caption != "morning" {
		t.Fatalf("sent wrong post: %+v", got)
	}

	s.tickAt(ctx, "08:01")
	if len(gw.sent) != 2 || gw.sent[1].channelID != 20 {
		t.Fatalf("after 08:01 tick sent = %+v", gw.sent)
	}

	// A minute with nothing due sends nothing.
	s.tickAt(ctx, "08:02")
	if len(gw.sent) != 2 {
		t.Fatalf("empty minute delivered something: %+v", gw.sent)
	}
}

func TestTickRepeatsDaily(t *testing.T) {
	t.Parallel()
	st := &dueStore{due: map[string][]storage.Post{
		"09:00": {{ID: 1, ChannelID: 10, ImageRef: "img", TimeOfDay: "09:00", RepeatDaily: true}},
	}}
	gw := &recordingGateway{}
	s := newService(t, st, gw)
	ctx := context.Background()

	// The same minute on consecutive days fires again; nothing marks the
	// post as consumed.
	s.tickAt(ctx, "09:00")
	s.tickAt(ctx, "09:00")
	if len(gw.sent) != 2 {
		t.Fatalf("sent %d times, want 2", len(gw.sent))
	}
}

func TestSendFailureIsIsolated(t *testing.T) {
	t.Parallel()
	st := &dueStore{due: map[string][]storage.Post{
		"10:00": {
			{ID: 1, ChannelID: 10, ImageRef: "img-a", TimeOfDay: "10:00", RepeatDaily: true},
			{ID: 2, ChannelID: 20, ImageRef: "img-b", TimeOfDay: "10:00", RepeatDaily: true},
		},
	}}
	gw := &recordingGateway{failOn: map[string]error{"img-a": errors.New("blocked by peer")}}
	s := newService(t, st, gw)

	s.tickAt(context.Background(), "10:00")
	if len(gw.sent) != 1 || gw.sent[0].imageRef != "img-b" {
		t.Fatalf("second post not delivered after first failed: %+v", gw.sent)
	}

	// Nothing was consumed; the failed post is due again next day.
	s.tickAt(context.Background(), "10:00")
	if len(gw.sent) != 2 {
		t.Fatalf("failed post not retried on next matching tick: %+v", gw.sent)
	}
}

func TestStoreFailureSkipsTick(t *testing.T) {
	t.Parallel()
	st := &dueStore{err: errors.New("database is locked")}
	gw := &recordingGateway{}
	s := newService(t, st, gw)

	s.tickAt(context.Background(), "11:00")
	if len(gw.sent) != 0 {
		t.Fatalf("tick delivered despite store error: %+v", gw.sent)
	}
}

func TestCanceledContextStopsMidTick(t *testing.T) {
	t.Parallel()
	st := &dueStore{due: map[string][]storage.Post{
		"12:00": {
			{ID: 1, ChannelID: 10, ImageRef: "img-a", TimeOfDay: "12:00", RepeatDaily: true},
			{ID: 2, ChannelID: 20, ImageRef: "img-b", TimeOfDay: "12:00", RepeatDaily: true},
		},
	}}
	gw := &recordingGateway{}
	s := newService(t, st, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.tickAt(ctx, "12:00")
	if len(gw.sent) != 0 {
		t.Fatalf("canceled tick still delivered: %+v", gw.sent)
	}
}

func TestInvalidTimezoneRejected(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Timezone: "Mars/Olympus"}, &dueStore{}, &recordingGateway{}, logx.Nop()); err == nil {
		t.Fatal("New accepted an unknown timezone")
	}
}

func TestTickUsesConfiguredZone(t *testing.T) {
	t.Parallel()
	st := &dueStore{due: map[string][]storage.Post{
		"15:30": {{ID: 1, ChannelID: 10, ImageRef: "img", TimeOfDay: "15:30", RepeatDaily: true}},
	}}
	gw := &recordingGateway{}
	// 12:30 UTC is 15:30 in Moscow (UTC+3, no DST).
	fixed := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	s, err := New(Config{Timezone: "Europe/Moscow"}, st, gw, logx.Nop(),
		WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.tick(context.Background())
	if len(gw.sent) != 1 {
		t.Fatalf("zone conversion wrong, sent = %+v", gw.sent)
	}
}
