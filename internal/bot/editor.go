package bot

import (
	"context"
	"fmt"
	"strings"

	"vidbot/internal/session"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

// handleVideo appends an inbound video to the operator's edit session,
// creating the session on the first video.
func (r *Router) handleVideo(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		r.reply(ctx, m, ownerOnlyVideoText)
		return
	}

	sess, created := r.sessions.GetOrCreate(m.FromID)
	if !created && sess.State != session.StateCollecting {
		r.reply(ctx, m, "❌ An edit is already in progress. Finish it or /cancel first.")
		return
	}

	count := sess.AppendVideo(session.VideoItem{
		Media:    m.Video.Media,
		Caption:  m.Caption,
		Duration: m.Video.Duration,
		Width:    m.Video.Width,
		Height:   m.Video.Height,
	})
	r.log.Debug("video collected", logx.Int64("owner", m.FromID), logx.Int("count", count))

	r.reply(ctx, m, fmt.Sprintf(
		"📹 Video %d received!\n\n"+
			"Options:\n"+
			"1️⃣ Send more videos for bulk edit\n"+
			"2️⃣ Type 'done' when ready to edit\n\n"+
			"Current videos: %d",
		count, count,
	))
}

// handlePhoto stores the thumbnail. The photo is already the
// highest-resolution variant (the adapter guarantees that).
func (r *Router) handlePhoto(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		r.reply(ctx, m, ownerOnlyVideoText)
		return
	}

	sess, ok := r.sessions.Get(m.FromID)
	if !ok || len(sess.Videos) == 0 {
		r.reply(ctx, m, videosFirstText)
		return
	}
	switch sess.State {
	case session.StateCollecting, session.StateAwaitingThumbnail:
		// a photo is accepted as soon as at least one video has arrived
	default:
		return
	}

	sess.SetThumbnail(m.Photo.Media)
	sess.State = session.StateAwaitingReplaceDecision
	r.reply(ctx, m, thumbnailSavedText)
}

// handleText drives the text-based transitions of the edit state machine.
// Routing is by explicit session state, so a find-text of "done" or "yes"
// is stored verbatim instead of being misread as a keyword.
func (r *Router) handleText(ctx context.Context, m *transport.Message) {
	if !r.isOperator(m.FromID) {
		// non-operator plain text is dropped silently
		return
	}

	sess, ok := r.sessions.Get(m.FromID)
	t := strings.ToLower(strings.TrimSpace(m.Text))

	if !ok {
		if t == "done" {
			r.reply(ctx, m, noVideosText)
		}
		return
	}

	switch sess.State {
	case session.StateCollecting:
		if t != "done" {
			return
		}
		if len(sess.Videos) == 0 {
			r.reply(ctx, m, noVideosText)
			return
		}
		sess.State = session.StateAwaitingThumbnail
		r.reply(ctx, m, fmt.Sprintf(
			"✅ %d video(s) ready!\n\nNow send a photo for the thumbnail.\n(This will be applied to all videos)",
			len(sess.Videos),
		))

	case session.StateAwaitingThumbnail:
		// still waiting for a photo; re-prompt on "done", ignore the rest
		if t == "done" {
			r.reply(ctx, m, fmt.Sprintf(
				"✅ %d video(s) ready!\n\nNow send a photo for the thumbnail.\n(This will be applied to all videos)",
				len(sess.Videos),
			))
		}

	case session.StateAwaitingReplaceDecision:
		switch t {
		case "yes":
			sess.State = session.StateAwaitingFindText
			r.reply(ctx, m, findPromptText)
		case "no":
			sess.State = session.StateProcessing
			r.startProcessing(sess)
		}

	case session.StateAwaitingFindText:
		sess.SetFindText(m.Text)
		sess.State = session.StateAwaitingReplaceText
		r.reply(ctx, m, fmt.Sprintf("✅ Will find: '%s'\n\nNow send the text to REPLACE it with:", m.Text))

	case session.StateAwaitingReplaceText:
		sess.SetReplaceText(m.Text)
		sess.State = session.StateProcessing
		r.reply(ctx, m, fmt.Sprintf("✅ Will replace with: '%s'\n\nProcessing videos...", m.Text))
		r.startProcessing(sess)

	case session.StateProcessing:
		// a render pass is running; nothing to do with stray text
	}
}
