package transport

import (
	"context"
	"errors"
	"fmt"
)

// MediaRef is an opaque platform reference to an already-uploaded media
// object (Telegram file_id). It can be re-sent without re-uploading.
type MediaRef string

// Message is one inbound chat message, normalized away from the platform
// SDK's types. Exactly one of Text / Video / Photo / Document is expected to
// be meaningful, with Caption accompanying media.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromName     string
	FromUsername string

	Text    string
	Caption string

	Video    *VideoAttachment
	Photo    *PhotoAttachment
	Document *DocumentAttachment
}

// VideoAttachment carries the metadata needed to re-send a video unmodified.
type VideoAttachment struct {
	Media    MediaRef
	Duration int // seconds
	Width    int
	Height   int
}

// PhotoAttachment is the highest-resolution variant of an inbound photo.
type PhotoAttachment struct {
	Media  MediaRef
	Width  int
	Height int
}

type DocumentAttachment struct {
	Media    MediaRef
	FileName string
}

type ChatTarget struct {
	ChatID int64
}

// MessageRef identifies a sent message so it can be edited in place.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// OutVideo describes a video re-delivery: original media and dimensions,
// possibly rewritten caption, optional replacement thumbnail bytes.
type OutVideo struct {
	Media    MediaRef
	Caption  string
	Thumb    []byte // nil means keep the platform-side thumbnail
	Duration int
	Width    int
	Height   int
}

// DeliveryError wraps a platform send/download failure. Reason carries the
// platform's human-readable description; callers classify on it.
type DeliveryError struct {
	Op     string
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ReasonOf extracts the human-readable delivery failure reason, falling back
// to the plain error text for errors that did not come from the adapter.
func ReasonOf(err error) string {
	var de *DeliveryError
	if errors.As(err, &de) {
		if de.Reason != "" {
			return de.Reason
		}
		if de.Err != nil {
			return de.Err.Error()
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Adapter is the boundary to the messaging platform. All methods translate
// platform failures into *DeliveryError.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, to ChatTarget, media MediaRef, caption string) error
	SendVideo(ctx context.Context, to ChatTarget, v OutVideo) error
	SendDocument(ctx context.Context, to ChatTarget, media MediaRef, caption string) error
	Download(ctx context.Context, media MediaRef) ([]byte, error)
}
