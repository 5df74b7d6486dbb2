// Package bot routes inbound messages to the edit session state machine and
// the broadcast dispatcher. One dispatch loop handles events sequentially in
// arrival order; long I/O (rendering, broadcast passes) runs on supervised
// goroutines so inbound handling never blocks behind it.
package bot

import (
	"context"
	"strings"
	"sync"

	"vidbot/internal/broadcast"
	"vidbot/internal/roster"
	"vidbot/internal/runtime/supervisor"
	"vidbot/internal/session"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

// Authorizer reports whether an identity may perform owner-only actions.
type Authorizer func(userID int64) bool

type Router struct {
	log        logx.Logger
	adapter    transport.Adapter
	sessions   *session.Store
	roster     *roster.Roster
	dispatcher *broadcast.Dispatcher
	isOperator Authorizer
	sup        *supervisor.Supervisor

	// pendingBroadcast marks operators whose next non-command message
	// becomes the broadcast payload.
	mu               sync.Mutex
	pendingBroadcast map[int64]bool
}

func NewRouter(
	log logx.Logger,
	adapter transport.Adapter,
	sessions *session.Store,
	r *roster.Roster,
	dispatcher *broadcast.Dispatcher,
	isOperator Authorizer,
	sup *supervisor.Supervisor,
) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:              log,
		adapter:          adapter,
		sessions:         sessions,
		roster:           r,
		dispatcher:       dispatcher,
		isOperator:       isOperator,
		sup:              sup,
		pendingBroadcast: map[int64]bool{},
	}
}

// DispatchLoop consumes inbound messages until the context is cancelled or
// the channel closes. Handler panics are contained per message.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-updates:
			if !ok {
				return nil
			}
			r.handleSafe(ctx, &m)
		}
	}
}

func (r *Router) handleSafe(ctx context.Context, m *transport.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic handling message", logx.Any("panic", rec), logx.Int64("from", m.FromID))
		}
	}()
	r.handle(ctx, m)
}

func (r *Router) handle(ctx context.Context, m *transport.Message) {
	if cmd, ok := parseCommand(m.Text); ok {
		r.handleCommand(ctx, m, cmd)
		return
	}

	// A pending /broadcast captures the next non-command message, whatever
	// its kind, as the payload.
	if r.isOperator(m.FromID) && r.takePendingBroadcast(m.FromID) {
		r.startBroadcast(m)
		return
	}

	switch {
	case m.Video != nil:
		r.handleVideo(ctx, m)
	case m.Photo != nil:
		r.handlePhoto(ctx, m)
	case m.Text != "":
		r.handleText(ctx, m)
	}
}

// parseCommand extracts a leading bot command like "/start", tolerating the
// "/start@botname" form Telegram uses in groups.
func parseCommand(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "/") {
		return "", false
	}
	cmd := strings.Fields(t)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), true
}

func (r *Router) setPendingBroadcast(id int64) {
	r.mu.Lock()
	r.pendingBroadcast[id] = true
	r.mu.Unlock()
}

// takePendingBroadcast consumes the pending flag if set.
func (r *Router) takePendingBroadcast(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pendingBroadcast[id] {
		return false
	}
	delete(r.pendingBroadcast, id)
	return true
}

func (r *Router) clearPendingBroadcast(id int64) {
	r.mu.Lock()
	delete(r.pendingBroadcast, id)
	r.mu.Unlock()
}

func (r *Router) reply(ctx context.Context, m *transport.Message, text string) {
	r.replyOpt(ctx, m, text, nil)
}

func (r *Router) replyOpt(ctx context.Context, m *transport.Message, text string, opt *transport.SendOptions) {
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

func (r *Router) startBroadcast(m *transport.Message) {
	payload, ok := broadcast.PayloadFrom(m)
	if !ok {
		return
	}
	operator := transport.ChatTarget{ChatID: m.ChatID}
	// The pass outlives this event; /cancel cannot stop it once started.
	r.sup.Go0("broadcast.pass", func(c context.Context) {
		r.dispatcher.Run(c, operator, payload)
	})
}
