// Package broadcast delivers one payload to every active roster entry,
// reclassifying unreachable users along the way. A pass is sequential per
// recipient and reports a single status message that transitions from
// "in progress" to final counts.
package broadcast

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vidbot/internal/roster"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

// Payload is the message being broadcast: plain text, or one media item
// with its original caption.
type Payload struct {
	Text     string
	Photo    *transport.PhotoAttachment
	Video    *transport.VideoAttachment
	Document *transport.DocumentAttachment
	Caption  string
}

// PayloadFrom extracts a broadcastable payload from an inbound message.
// It reports false for messages the dispatcher cannot deliver.
func PayloadFrom(m *transport.Message) (Payload, bool) {
	switch {
	case m.Photo != nil:
		return Payload{Photo: m.Photo, Caption: m.Caption}, true
	case m.Video != nil:
		return Payload{Video: m.Video, Caption: m.Caption}, true
	case m.Document != nil:
		return Payload{Document: m.Document, Caption: m.Caption}, true
	case m.Text != "":
		return Payload{Text: m.Text}, true
	default:
		return Payload{}, false
	}
}

// Outcome accumulates counters for one pass. Sent+Blocked+Failed equals the
// number of active users at pass start.
type Outcome struct {
	Sent    int
	Blocked int
	Failed  int
}

type Dispatcher struct {
	adapter transport.Adapter
	roster  *roster.Roster
	log     logx.Logger
}

func NewDispatcher(adapter transport.Adapter, r *roster.Roster, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{adapter: adapter, roster: r, log: log}
}

// Run performs one full broadcast pass: status message up front, sequential
// delivery to every active user, roster persistence, then the status message
// edited in place with final counts. Per-recipient failures never abort the
// pass.
func (d *Dispatcher) Run(ctx context.Context, operator transport.ChatTarget, p Payload) Outcome {
	passID := uuid.NewString()[:8]
	log := d.log.With(logx.String("pass", passID))

	statusRef, err := d.adapter.SendText(ctx, operator, "📡 Broadcasting...", nil)
	if err != nil {
		log.Warn("broadcast status message failed", logx.Err(err))
	}

	targets := d.roster.Active()
	log.Info("broadcast pass started", logx.Int("targets", len(targets)))

	var out Outcome
	for _, u := range targets {
		err := d.deliver(ctx, transport.ChatTarget{ChatID: u.ID}, p)
		switch Classify(err) {
		case DeliverySent:
			out.Sent++
		case DeliveryBlocked:
			out.Blocked++
			d.roster.SetStatus(u.ID, roster.StatusBlocked)
			log.Info("recipient unreachable; marked blocked", logx.Int64("user", u.ID), logx.String("reason", transport.ReasonOf(err)))
		case DeliveryFailed:
			out.Failed++
			log.Warn("broadcast delivery failed", logx.Int64("user", u.ID), logx.Err(err))
		}
	}

	// Status flips must survive a restart even when some sends failed.
	d.roster.Save(ctx)

	final := fmt.Sprintf(
		"✅ Broadcast Complete!\n\n✓ Sent: %d\n🚫 Blocked: %d\n✗ Failed: %d",
		out.Sent, out.Blocked, out.Failed,
	)
	if statusRef.MessageID != 0 {
		if err := d.adapter.EditText(ctx, statusRef, final, nil); err != nil {
			log.Warn("broadcast status edit failed", logx.Err(err))
		}
	} else if _, err := d.adapter.SendText(ctx, operator, final, nil); err != nil {
		log.Warn("broadcast summary send failed", logx.Err(err))
	}

	log.Info("broadcast pass finished",
		logx.Int("sent", out.Sent), logx.Int("blocked", out.Blocked), logx.Int("failed", out.Failed))
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, to transport.ChatTarget, p Payload) error {
	switch {
	case p.Photo != nil:
		return d.adapter.SendPhoto(ctx, to, p.Photo.Media, p.Caption)
	case p.Video != nil:
		return d.adapter.SendVideo(ctx, to, transport.OutVideo{
			Media:    p.Video.Media,
			Caption:  p.Caption,
			Duration: p.Video.Duration,
			Width:    p.Video.Width,
			Height:   p.Video.Height,
		})
	case p.Document != nil:
		return d.adapter.SendDocument(ctx, to, p.Document.Media, p.Caption)
	default:
		_, err := d.adapter.SendText(ctx, to, "📢 Broadcast:\n\n"+p.Text, nil)
		return err
	}
}
