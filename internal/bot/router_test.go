package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vidbot/internal/broadcast"
	"vidbot/internal/roster"
	"vidbot/internal/runtime/supervisor"
	"vidbot/internal/session"
	"vidbot/internal/transport"
	"vidbot/internal/transport/transporttest"
	logx "vidbot/pkg/logx"
)

const (
	operatorID = int64(99)
	guestID    = int64(500)
)

type fixture struct {
	router   *Router
	fake     *transporttest.Fake
	sessions *session.Store
	roster   *roster.Roster
	sup      *supervisor.Supervisor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := transporttest.New()
	r, err := roster.Open(roster.Config{Path: filepath.Join(t.TempDir(), "users.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("roster.Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	sessions := session.NewStore()
	sup := supervisor.New(context.Background())
	d := broadcast.NewDispatcher(fake, r, logx.Nop())
	isOp := func(id int64) bool { return id == operatorID }
	router := NewRouter(logx.Nop(), fake, sessions, r, d, isOp, sup)
	return &fixture{router: router, fake: fake, sessions: sessions, roster: r, sup: sup}
}

// settle waits for the supervised goroutines this test spawned to finish.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := f.sup.Wait(ctx); err != nil {
		t.Fatalf("supervisor wait: %v", err)
	}
}

func textMsg(from int64, text string) *transport.Message {
	return &transport.Message{ChatID: from, FromID: from, Text: text}
}

func videoMsg(from int64, media, caption string) *transport.Message {
	return &transport.Message{
		ChatID:  from,
		FromID:  from,
		Caption: caption,
		Video:   &transport.VideoAttachment{Media: transport.MediaRef(media), Duration: 12, Width: 1280, Height: 720},
	}
}

func photoMsg(from int64, media string) *transport.Message {
	return &transport.Message{
		ChatID: from,
		FromID: from,
		Photo:  &transport.PhotoAttachment{Media: transport.MediaRef(media), Width: 800, Height: 600},
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in  string
		cmd string
		ok  bool
	}{
		{in: "/start", cmd: "/start", ok: true},
		{in: "  /Cancel  ", cmd: "/cancel", ok: true},
		{in: "/broadcast@vidbot now", cmd: "/broadcast", ok: true},
		{in: "done", ok: false},
		{in: "", ok: false},
		{in: "hello /start", ok: false},
	}
	for _, tt := range tests {
		cmd, ok := parseCommand(tt.in)
		if cmd != tt.cmd || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q,%v want %q,%v", tt.in, cmd, ok, tt.cmd, tt.ok)
		}
	}
}

func TestGuestAccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// /start registers exactly once and always answers with the welcome.
	f.router.handle(ctx, textMsg(guestID, "/start"))
	f.router.handle(ctx, textMsg(guestID, "/start"))
	if f.roster.Len() != 1 {
		t.Fatalf("roster has %d users after two /start, want 1", f.roster.Len())
	}
	if texts := f.fake.TextsTo(guestID); len(texts) != 2 || texts[0] != guestWelcomeText {
		t.Fatalf("guest replies = %q", texts)
	}

	f.router.handle(ctx, videoMsg(guestID, "v1", ""))
	if got := f.fake.LastText(guestID); got != ownerOnlyVideoText {
		t.Fatalf("guest video reply = %q", got)
	}

	f.router.handle(ctx, textMsg(guestID, "/broadcast"))
	if got := f.fake.LastText(guestID); got != ownerOnlyText {
		t.Fatalf("guest /broadcast reply = %q", got)
	}

	// Plain text and /stats from guests are dropped without a reply.
	before := len(f.fake.TextsTo(guestID))
	f.router.handle(ctx, textMsg(guestID, "hello"))
	f.router.handle(ctx, textMsg(guestID, "/stats"))
	if after := len(f.fake.TextsTo(guestID)); after != before {
		t.Fatalf("guest text/stats produced %d extra replies", after-before)
	}
	if f.sessions.Len() != 0 {
		t.Fatal("guest traffic must not create sessions")
	}
}

func TestOperatorStartShowsPanel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.router.handle(context.Background(), textMsg(operatorID, "/start"))
	if got := f.fake.LastText(operatorID); got != ownerPanelText {
		t.Fatalf("operator /start reply = %q", got)
	}
	if f.roster.Len() != 0 {
		t.Fatal("the operator must not be added to the roster")
	}
}

func TestEditFlowThumbnailOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Files["thumb1"] = []byte("jpeg-bytes")

	f.router.handle(ctx, videoMsg(operatorID, "v1", "first"))
	f.router.handle(ctx, videoMsg(operatorID, "v2", "second"))
	f.router.handle(ctx, textMsg(operatorID, "done"))
	f.router.handle(ctx, photoMsg(operatorID, "thumb1"))
	f.router.handle(ctx, textMsg(operatorID, "no"))
	f.settle(t)

	if len(f.fake.Videos) != 2 {
		t.Fatalf("re-delivered %d videos, want 2", len(f.fake.Videos))
	}
	for i, want := range []struct{ media, caption string }{{"v1", "first"}, {"v2", "second"}} {
		v := f.fake.Videos[i].Video
		if string(v.Media) != want.media || v.Caption != want.caption {
			t.Fatalf("video %d = %q/%q, want %q/%q", i, v.Media, v.Caption, want.media, want.caption)
		}
		if string(v.Thumb) != "jpeg-bytes" {
			t.Fatalf("video %d missing replacement thumbnail", i)
		}
	}

	final := f.fake.Edits[len(f.fake.Edits)-1].Text
	for _, want := range []string{"Processed: 2/2", "🖼️ Thumbnail: Changed", "📝 Caption: Original"} {
		if !strings.Contains(final, want) {
			t.Fatalf("final summary %q missing %q", final, want)
		}
	}
	if _, ok := f.sessions.Get(operatorID); ok {
		t.Fatal("session must be destroyed after processing")
	}
}

func TestEditFlowFindReplace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Files["thumb1"] = []byte("x")

	f.router.handle(ctx, videoMsg(operatorID, "v1", "foo bar foo"))
	f.router.handle(ctx, textMsg(operatorID, "done"))
	f.router.handle(ctx, photoMsg(operatorID, "thumb1"))
	f.router.handle(ctx, textMsg(operatorID, "yes"))
	f.router.handle(ctx, textMsg(operatorID, "foo"))
	f.router.handle(ctx, textMsg(operatorID, "bar"))
	f.settle(t)

	if len(f.fake.Videos) != 1 {
		t.Fatalf("re-delivered %d videos, want 1", len(f.fake.Videos))
	}
	if got := f.fake.Videos[0].Video.Caption; got != "bar bar bar" {
		t.Fatalf("rewritten caption = %q, want %q", got, "bar bar bar")
	}
	final := f.fake.Edits[len(f.fake.Edits)-1].Text
	if !strings.Contains(final, "✏️ Caption: Modified") {
		t.Fatalf("final summary %q missing caption line", final)
	}
}

// A find-text of "done" is stored verbatim instead of being treated as the
// collection keyword.
func TestFindTextKeywordsStoredVerbatim(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Files["thumb1"] = []byte("x")

	f.router.handle(ctx, videoMsg(operatorID, "v1", "done deal"))
	f.router.handle(ctx, textMsg(operatorID, "done"))
	f.router.handle(ctx, photoMsg(operatorID, "thumb1"))
	f.router.handle(ctx, textMsg(operatorID, "yes"))
	f.router.handle(ctx, textMsg(operatorID, "done"))

	if sess, _ := f.sessions.Get(operatorID); sess.FindText != "done" || sess.State != session.StateAwaitingReplaceText {
		t.Fatalf("find text not stored verbatim: %+v", sess)
	}

	f.router.handle(ctx, textMsg(operatorID, "X"))
	f.settle(t)

	if got := f.fake.Videos[0].Video.Caption; got != "X deal" {
		t.Fatalf("rewritten caption = %q, want %q", got, "X deal")
	}
}

func TestDoneWithoutVideos(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.router.handle(ctx, textMsg(operatorID, "done"))
	if got := f.fake.LastText(operatorID); got != noVideosText {
		t.Fatalf("done with no session reply = %q", got)
	}

	f.router.handle(ctx, photoMsg(operatorID, "thumb1"))
	if got := f.fake.LastText(operatorID); got != videosFirstText {
		t.Fatalf("photo before videos reply = %q", got)
	}
}

func TestCancelDestroysSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.router.handle(ctx, videoMsg(operatorID, "v1", ""))
	f.router.handle(ctx, textMsg(operatorID, "/cancel"))
	if got := f.fake.LastText(operatorID); got != cancelledText {
		t.Fatalf("/cancel reply = %q", got)
	}
	if _, ok := f.sessions.Get(operatorID); ok {
		t.Fatal("session should be gone after /cancel")
	}

	f.router.handle(ctx, textMsg(operatorID, "done"))
	if got := f.fake.LastText(operatorID); got != noVideosText {
		t.Fatalf("done after /cancel reply = %q", got)
	}
}

func TestVideoDuringEditIsRefused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.router.handle(ctx, videoMsg(operatorID, "v1", ""))
	f.router.handle(ctx, textMsg(operatorID, "done"))
	f.router.handle(ctx, videoMsg(operatorID, "v2", ""))

	sess, _ := f.sessions.Get(operatorID)
	if len(sess.Videos) != 1 {
		t.Fatalf("session has %d videos, want the late video refused", len(sess.Videos))
	}
	if got := f.fake.LastText(operatorID); !strings.Contains(got, "already in progress") {
		t.Fatalf("late video reply = %q", got)
	}
}

func TestRenderContinuesPastFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Files["thumb1"] = []byte("x")

	var attempts atomic.Int32
	f.fake.FailSend = func(op string, to transport.ChatTarget) error {
		if op != "send_video" {
			return nil
		}
		if attempts.Add(1) == 1 {
			return &transport.DeliveryError{Op: op, Reason: "Request Entity Too Large"}
		}
		return nil
	}

	f.router.handle(ctx, videoMsg(operatorID, "v1", "a"))
	f.router.handle(ctx, videoMsg(operatorID, "v2", "b"))
	f.router.handle(ctx, textMsg(operatorID, "done"))
	f.router.handle(ctx, photoMsg(operatorID, "thumb1"))
	f.router.handle(ctx, textMsg(operatorID, "no"))
	f.settle(t)

	if got := attempts.Load(); got != 2 {
		t.Fatalf("send attempts = %d, want every item tried", got)
	}
	final := f.fake.Edits[len(f.fake.Edits)-1].Text
	if !strings.Contains(final, "Processed: 1/2") {
		t.Fatalf("final summary %q, want 1/2", final)
	}
	if _, ok := f.sessions.Get(operatorID); ok {
		t.Fatal("session must be destroyed even after failures")
	}
}

func TestBroadcastCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.roster.Upsert(roster.User{ID: guestID, Name: "g"})

	f.router.handle(ctx, textMsg(operatorID, "/broadcast"))
	if got := f.fake.LastText(operatorID); got != broadcastModeText {
		t.Fatalf("/broadcast reply = %q", got)
	}

	f.router.handle(ctx, textMsg(operatorID, "big news"))
	f.settle(t)

	texts := f.fake.TextsTo(guestID)
	if len(texts) != 1 || texts[0] != "📢 Broadcast:\n\nbig news" {
		t.Fatalf("broadcast delivery = %q", texts)
	}
	// The captured text must not leak into the edit state machine.
	if f.sessions.Len() != 0 {
		t.Fatal("broadcast payload created an edit session")
	}
}

func TestCancelClearsPendingBroadcast(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.roster.Upsert(roster.User{ID: guestID})

	f.router.handle(ctx, textMsg(operatorID, "/broadcast"))
	f.router.handle(ctx, textMsg(operatorID, "/cancel"))
	f.router.handle(ctx, textMsg(operatorID, "not a broadcast"))
	f.settle(t)

	if texts := f.fake.TextsTo(guestID); len(texts) != 0 {
		t.Fatalf("cancelled broadcast still delivered: %q", texts)
	}
}

func TestUsersListing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.router.handle(ctx, textMsg(operatorID, "/users"))
	if got := f.fake.LastText(operatorID); got != noUsersText {
		t.Fatalf("/users on empty roster = %q", got)
	}

	f.roster.Upsert(roster.User{ID: 2, Name: "Bob <x>"})
	f.roster.Upsert(roster.User{ID: 1, Name: "Al", Status: roster.StatusBlocked})
	f.router.handle(ctx, textMsg(operatorID, "/users"))

	got := f.fake.LastText(operatorID)
	wantBlocked := `🚫 <a href="tg://user?id=1">Al</a> (ID: 1)`
	wantActive := `✅ <a href="tg://user?id=2">Bob &lt;x&gt;</a> (ID: 2)`
	if !strings.Contains(got, wantBlocked) || !strings.Contains(got, wantActive) {
		t.Fatalf("/users listing = %q", got)
	}
	if strings.Index(got, wantBlocked) > strings.Index(got, wantActive) {
		t.Fatal("/users listing not ordered by id")
	}
	last := f.fake.Texts[len(f.fake.Texts)-1]
	if last.Opt == nil || last.Opt.ParseMode != "HTML" {
		t.Fatal("/users listing must use HTML parse mode")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.roster.Upsert(roster.User{ID: 1})
	f.roster.Upsert(roster.User{ID: 2, Status: roster.StatusBlocked})

	f.router.handle(ctx, textMsg(operatorID, "/stats"))
	got := f.fake.LastText(operatorID)
	for _, want := range []string{"👥 Total Users: 2", "✅ Active: 1", "🚫 Blocked: 1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("/stats reply %q missing %q", got, want)
		}
	}
}

func TestDispatchLoopStopsOnChannelClose(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	updates := make(chan transport.Message, 1)
	updates <- *textMsg(operatorID, "/start")
	close(updates)

	if err := f.router.DispatchLoop(context.Background(), updates); err != nil {
		t.Fatalf("DispatchLoop: %v", err)
	}
	if got := f.fake.LastText(operatorID); got != ownerPanelText {
		t.Fatalf("message from loop not handled, last reply = %q", got)
	}
}
