package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"vidbot/internal/runtime/supervisor"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter implements transport.Adapter on top of telebot long polling.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- transport.Message)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop reporter).
	// Created on Start(), cancelled on Stop().
	sup *supervisor.Supervisor

	// dropped counts inbound messages discarded because the consumer was
	// slower than the poll loop. Reported periodically instead of per drop.
	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel; Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		msg := baseMessage(m)
		msg.Text = m.Text
		a.forward(msg)
		return nil
	})

	a.bot.Handle(tele.OnVideo, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Video == nil {
			return nil
		}
		msg := baseMessage(m)
		msg.Caption = m.Caption
		msg.Video = &transport.VideoAttachment{
			Media:    transport.MediaRef(m.Video.FileID),
			Duration: m.Video.Duration,
			Width:    m.Video.Width,
			Height:   m.Video.Height,
		}
		a.forward(msg)
		return nil
	})

	a.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Photo == nil {
			return nil
		}
		// telebot exposes only the largest size of the photo set.
		msg := baseMessage(m)
		msg.Caption = m.Caption
		msg.Photo = &transport.PhotoAttachment{
			Media:  transport.MediaRef(m.Photo.FileID),
			Width:  m.Photo.Width,
			Height: m.Photo.Height,
		}
		a.forward(msg)
		return nil
	})

	a.bot.Handle(tele.OnDocument, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Document == nil {
			return nil
		}
		msg := baseMessage(m)
		msg.Caption = m.Caption
		msg.Document = &transport.DocumentAttachment{
			Media:    transport.MediaRef(m.Document.FileID),
			FileName: m.Document.FileName,
		}
		a.forward(msg)
		return nil
	})
}

func baseMessage(m *tele.Message) transport.Message {
	msg := transport.Message{
		ID:     m.ID,
		ChatID: m.Chat.ID,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
		msg.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return msg
}

func (a *Adapter) forward(msg transport.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "telegram"))),
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("inbound messages dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("inbound messages dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// telebot's Start() blocks until Stop(); run it under a restart loop so
	// the adapter self-heals if the poll loop exits unexpectedly.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}
	if sup == nil {
		return nil
	}

	// Grace window: keep shutdown snappy even if the long-poll is waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

// splitText splits long messages into chunks on newline boundaries where
// possible; Telegram rejects messages over its length limit.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chunks := splitText(text, textLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first transport.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
		})
		if err != nil {
			return first, deliveryErr("sendText", err)
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chunks := splitText(text, textLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(m, chunks[0], &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}); err != nil {
		return deliveryErr("editText", err)
	}
	// Overflow goes out as fresh messages; edits can't grow past one message.
	for _, chunk := range chunks[1:] {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk); err != nil {
			return deliveryErr("editText", err)
		}
	}
	return nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	p := &tele.Photo{File: tele.File{FileID: string(media)}, Caption: caption}
	if _, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, p); err != nil {
		return deliveryErr("sendPhoto", err)
	}
	return nil
}

func (a *Adapter) SendVideo(ctx context.Context, to transport.ChatTarget, v transport.OutVideo) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	out := &tele.Video{
		File:     tele.File{FileID: string(v.Media)},
		Caption:  v.Caption,
		Duration: v.Duration,
		Width:    v.Width,
		Height:   v.Height,
	}
	if len(v.Thumb) > 0 {
		out.Thumbnail = &tele.Photo{File: tele.FromReader(bytes.NewReader(v.Thumb))}
	}
	if _, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, out); err != nil {
		return deliveryErr("sendVideo", err)
	}
	return nil
}

func (a *Adapter) SendDocument(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	d := &tele.Document{File: tele.File{FileID: string(media)}, Caption: caption}
	if _, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, d); err != nil {
		return deliveryErr("sendDocument", err)
	}
	return nil
}

func (a *Adapter) Download(ctx context.Context, media transport.MediaRef) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	rc, err := a.bot.File(&tele.File{FileID: string(media)})
	if err != nil {
		return nil, deliveryErr("download", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, deliveryErr("download", err)
	}
	return b, nil
}

func deliveryErr(op string, err error) error {
	return &transport.DeliveryError{Op: op, Reason: err.Error(), Err: err}
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
