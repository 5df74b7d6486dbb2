package broadcast

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"vidbot/internal/roster"
	"vidbot/internal/transport"
	"vidbot/internal/transport/transporttest"
	logx "vidbot/pkg/logx"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Delivery
	}{
		{name: "nil is sent", err: nil, want: DeliverySent},
		{name: "blocked by user", err: &transport.DeliveryError{Op: "send_text", Reason: "Forbidden: bot was blocked by the user"}, want: DeliveryBlocked},
		{name: "deactivated account", err: &transport.DeliveryError{Op: "send_text", Reason: "Forbidden: user is deactivated"}, want: DeliveryBlocked},
		{name: "chat not found", err: &transport.DeliveryError{Op: "send_photo", Reason: "Bad Request: chat not found"}, want: DeliveryBlocked},
		{name: "flood wait is transient", err: &transport.DeliveryError{Op: "send_text", Reason: "Too Many Requests: retry after 30"}, want: DeliveryFailed},
		{name: "plain error is transient", err: errors.New("connection reset"), want: DeliveryFailed},
		{name: "wrapped delivery error", err: errors.Join(errors.New("outer"), &transport.DeliveryError{Op: "send_text", Reason: "user is Deactivated"}), want: DeliveryBlocked},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPayloadFrom(t *testing.T) {
	t.Parallel()
	photo := &transport.PhotoAttachment{Media: "p1"}
	m := &transport.Message{Photo: photo, Caption: "cap", Text: "ignored"}
	p, ok := PayloadFrom(m)
	if !ok || p.Photo != photo || p.Caption != "cap" || p.Text != "" {
		t.Fatalf("photo payload mismatch: %+v ok=%v", p, ok)
	}

	if _, ok := PayloadFrom(&transport.Message{}); ok {
		t.Fatal("empty message should not produce a payload")
	}

	p, ok = PayloadFrom(&transport.Message{Text: "hello"})
	if !ok || p.Text != "hello" {
		t.Fatalf("text payload mismatch: %+v ok=%v", p, ok)
	}
}

func newRoster(t *testing.T, users ...roster.User) *roster.Roster {
	t.Helper()
	r, err := roster.Open(roster.Config{Path: filepath.Join(t.TempDir(), "users.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("roster.Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	for _, u := range users {
		r.Upsert(u)
	}
	return r
}

func TestRunCountsAndReclassifies(t *testing.T) {
	t.Parallel()
	const operatorChat = int64(1000)

	r := newRoster(t,
		roster.User{ID: 1, Name: "a"},
		roster.User{ID: 2, Name: "b"},
		roster.User{ID: 3, Name: "c"},
		roster.User{ID: 4, Name: "d", Status: roster.StatusBlocked},
	)

	fake := transporttest.New()
	fake.FailSend = func(op string, to transport.ChatTarget) error {
		switch to.ChatID {
		case 2:
			return &transport.DeliveryError{Op: op, Reason: "Forbidden: bot was blocked by the user"}
		case 3:
			return &transport.DeliveryError{Op: op, Reason: "Internal Server Error"}
		}
		return nil
	}

	d := NewDispatcher(fake, r, logx.Nop())
	out := d.Run(context.Background(), transport.ChatTarget{ChatID: operatorChat}, Payload{Text: "hi all"})

	if out.Sent != 1 || out.Blocked != 1 || out.Failed != 1 {
		t.Fatalf("outcome = %+v, want 1/1/1", out)
	}
	if got := out.Sent + out.Blocked + out.Failed; got != 3 {
		t.Fatalf("outcome sum = %d, want the 3 users active at pass start", got)
	}

	// The blocked user is flipped; the transient failure and the already
	// blocked user keep their statuses.
	if u, _ := r.Get(2); u.Status != roster.StatusBlocked {
		t.Fatalf("user 2 status = %q, want blocked", u.Status)
	}
	if u, _ := r.Get(3); u.Status != roster.StatusActive {
		t.Fatalf("user 3 status = %q, want active", u.Status)
	}

	// Text payloads are prefixed for recipients.
	texts := fake.TextsTo(1)
	if len(texts) != 1 || texts[0] != "📢 Broadcast:\n\nhi all" {
		t.Fatalf("recipient text = %q", texts)
	}

	// In-place status update from "in progress" to final counts.
	if got := fake.LastText(operatorChat); got != "📡 Broadcasting..." {
		t.Fatalf("operator status = %q", got)
	}
	if len(fake.Edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(fake.Edits))
	}
	final := fake.Edits[0].Text
	for _, want := range []string{"✅ Broadcast Complete!", "✓ Sent: 1", "🚫 Blocked: 1", "✗ Failed: 1"} {
		if !strings.Contains(final, want) {
			t.Fatalf("final status %q missing %q", final, want)
		}
	}
}

func TestRunDeliversMedia(t *testing.T) {
	t.Parallel()
	r := newRoster(t, roster.User{ID: 7})
	fake := transporttest.New()
	d := NewDispatcher(fake, r, logx.Nop())

	out := d.Run(context.Background(), transport.ChatTarget{ChatID: 1}, Payload{
		Video:   &transport.VideoAttachment{Media: "v1", Duration: 9, Width: 640, Height: 360},
		Caption: "watch this",
	})
	if out.Sent != 1 {
		t.Fatalf("outcome = %+v, want 1 sent", out)
	}
	if len(fake.Videos) != 1 {
		t.Fatalf("got %d videos, want 1", len(fake.Videos))
	}
	v := fake.Videos[0]
	if v.To.ChatID != 7 || string(v.Video.Media) != "v1" || v.Video.Caption != "watch this" || v.Video.Duration != 9 {
		t.Fatalf("video delivery mismatch: %+v", v)
	}
	if v.Video.Thumb != nil {
		t.Fatal("broadcast must not attach a thumbnail")
	}
}

func TestRunStatusSendFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	r := newRoster(t, roster.User{ID: 5})
	fake := transporttest.New()
	fake.FailSend = func(op string, to transport.ChatTarget) error {
		if to.ChatID == 1 { // operator chat only
			return &transport.DeliveryError{Op: op, Reason: "Internal Server Error"}
		}
		return nil
	}

	d := NewDispatcher(fake, r, logx.Nop())
	out := d.Run(context.Background(), transport.ChatTarget{ChatID: 1}, Payload{Text: "x"})
	if out.Sent != 1 {
		t.Fatalf("outcome = %+v, want the recipient still reached", out)
	}
}
