// Package transporttest provides an in-memory Adapter for exercising
// handlers and dispatchers without the messaging platform.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"vidbot/internal/transport"
)

type SentText struct {
	To   transport.ChatTarget
	Text string
	Opt  *transport.SendOptions
}

type EditedText struct {
	Ref  transport.MessageRef
	Text string
}

type SentVideo struct {
	To    transport.ChatTarget
	Video transport.OutVideo
}

type SentPhoto struct {
	To      transport.ChatTarget
	Media   transport.MediaRef
	Caption string
}

type SentDocument struct {
	To      transport.ChatTarget
	Media   transport.MediaRef
	Caption string
}

// Fake records every outbound call. Set FailSend to inject delivery errors;
// it is consulted with the operation name ("send_text", "send_video", ...)
// and the target before each delivery.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Texts     []SentText
	Edits     []EditedText
	Videos    []SentVideo
	Photos    []SentPhoto
	Documents []SentDocument

	// Files backs Download; unknown refs fail.
	Files map[transport.MediaRef][]byte

	FailSend func(op string, to transport.ChatTarget) error
}

var _ transport.Adapter = (*Fake)(nil)

func New() *Fake {
	return &Fake{Files: map[transport.MediaRef][]byte{}}
}

func (f *Fake) fail(op string, to transport.ChatTarget) error {
	if f.FailSend == nil {
		return nil
	}
	return f.FailSend(op, to)
}

func (f *Fake) Start(ctx context.Context, out chan<- transport.Message) error { return nil }

func (f *Fake) Stop(ctx context.Context) error { return nil }

func (f *Fake) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("send_text", to); err != nil {
		return transport.MessageRef{}, err
	}
	f.nextID++
	f.Texts = append(f.Texts, SentText{To: to, Text: text, Opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *Fake) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("edit_text", transport.ChatTarget{ChatID: ref.ChatID}); err != nil {
		return err
	}
	f.Edits = append(f.Edits, EditedText{Ref: ref, Text: text})
	return nil
}

func (f *Fake) SendPhoto(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("send_photo", to); err != nil {
		return err
	}
	f.Photos = append(f.Photos, SentPhoto{To: to, Media: media, Caption: caption})
	return nil
}

func (f *Fake) SendVideo(ctx context.Context, to transport.ChatTarget, v transport.OutVideo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("send_video", to); err != nil {
		return err
	}
	f.Videos = append(f.Videos, SentVideo{To: to, Video: v})
	return nil
}

func (f *Fake) SendDocument(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("send_document", to); err != nil {
		return err
	}
	f.Documents = append(f.Documents, SentDocument{To: to, Media: media, Caption: caption})
	return nil
}

func (f *Fake) Download(ctx context.Context, media transport.MediaRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Files[media]
	if !ok {
		return nil, &transport.DeliveryError{Op: "download", Reason: fmt.Sprintf("unknown file %q", media)}
	}
	return b, nil
}

// TextsTo returns the texts sent to one chat, in order.
func (f *Fake) TextsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.Texts {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// LastText returns the most recent text sent to a chat, or "".
func (f *Fake) LastText(chatID int64) string {
	ts := f.TextsTo(chatID)
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}
