package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"vidbot/internal/roster"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

func (r *Router) handleCommand(ctx context.Context, m *transport.Message, cmd string) {
	switch cmd {
	case "/start":
		r.cmdStart(ctx, m)
	case "/cancel":
		r.cmdCancel(ctx, m)
	case "/stats":
		r.cmdStats(ctx, m)
	case "/users":
		r.cmdUsers(ctx, m)
	case "/broadcast":
		r.cmdBroadcast(ctx, m)
	default:
		// unknown commands are ignored
	}
}

func (r *Router) cmdStart(ctx context.Context, m *transport.Message) {
	if r.isOperator(m.FromID) {
		r.reply(ctx, m, ownerPanelText)
		return
	}

	if _, known := r.roster.Get(m.FromID); !known {
		r.roster.Upsert(roster.User{
			ID:       m.FromID,
			Name:     m.FromName,
			Username: m.FromUsername,
			Status:   roster.StatusActive,
		})
		r.roster.Save(ctx)
		r.log.Info("user registered", logx.Int64("user", m.FromID), logx.String("username", m.FromUsername))
	}
	r.reply(ctx, m, guestWelcomeText)
}

// cmdCancel destroys any in-flight session and pending broadcast wait. It
// does not touch a rendering or broadcast pass already running.
func (r *Router) cmdCancel(ctx context.Context, m *transport.Message) {
	r.sessions.Delete(m.FromID)
	r.clearPendingBroadcast(m.FromID)
	r.reply(ctx, m, cancelledText)
}

func (r *Router) cmdStats(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		return
	}
	total, active, blocked := r.roster.Stats()
	r.reply(ctx, m, fmt.Sprintf(
		"📊 Bot Statistics\n\n👥 Total Users: %d\n✅ Active: %d\n🚫 Blocked: %d",
		total, active, blocked,
	))
}

func (r *Router) cmdUsers(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		return
	}
	users := r.roster.List()
	if len(users) == 0 {
		r.reply(ctx, m, noUsersText)
		return
	}

	var b strings.Builder
	b.WriteString("👥 All Users:\n\n")
	for _, u := range users {
		marker := "✅"
		if u.Status == roster.StatusBlocked {
			marker = "🚫"
		}
		fmt.Fprintf(&b, `%s <a href="tg://user?id=%d">%s</a> (ID: %d)`+"\n",
			marker, u.ID, html.EscapeString(u.Name), u.ID)
	}
	r.replyOpt(ctx, m, b.String(), &transport.SendOptions{ParseMode: "HTML"})
}

func (r *Router) cmdBroadcast(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		r.reply(ctx, m, ownerOnlyText)
		return
	}
	r.setPendingBroadcast(m.FromID)
	r.reply(ctx, m, broadcastModeText)
}
