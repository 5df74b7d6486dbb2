package bot

import (
	"context"
	"fmt"

	"vidbot/internal/session"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

// startProcessing hands the session to a supervised goroutine so the
// dispatch loop keeps serving events during re-delivery. /cancel cannot
// stop a pass once it has started.
func (r *Router) startProcessing(sess *session.Session) {
	r.sup.Go0("edit.render", func(c context.Context) {
		r.processSession(c, sess)
	})
}

// processSession re-delivers every collected video in arrival order with the
// (possibly rewritten) caption and (possibly replaced) thumbnail. Per-item
// failures are logged and never abort the rest of the batch. The session is
// destroyed afterwards whether or not every item succeeded.
func (r *Router) processSession(ctx context.Context, sess *session.Session) {
	owner := transport.ChatTarget{ChatID: sess.OwnerID}
	total := len(sess.Videos)
	log := r.log.With(logx.Int64("owner", sess.OwnerID))

	defer r.sessions.Delete(sess.OwnerID)

	statusRef, err := r.adapter.SendText(ctx, owner, fmt.Sprintf("⏳ Processing %d video(s)...", total), nil)
	if err != nil {
		log.Warn("render status message failed", logx.Err(err))
	}
	progress := func(text string) {
		if statusRef.MessageID == 0 {
			return
		}
		if err := r.adapter.EditText(ctx, statusRef, text, nil); err != nil {
			log.Debug("render progress edit failed", logx.Err(err))
		}
	}

	// The thumbnail is fetched lazily and cached after the first success,
	// so a transient download failure on one item doesn't doom the rest.
	var thumb []byte

	success := 0
	for i, v := range sess.Videos {
		item := func() error {
			if sess.Thumbnail != "" && thumb == nil {
				b, err := r.adapter.Download(ctx, sess.Thumbnail)
				if err != nil {
					return err
				}
				thumb = b
			}
			return r.adapter.SendVideo(ctx, owner, transport.OutVideo{
				Media:    v.Media,
				Caption:  sess.RewriteCaption(v.Caption),
				Thumb:    thumb,
				Duration: v.Duration,
				Width:    v.Width,
				Height:   v.Height,
			})
		}()
		if item != nil {
			log.Error("video re-delivery failed", logx.Int("item", i+1), logx.Int("total", total), logx.Err(item))
		} else {
			success++
		}
		progress(fmt.Sprintf("⏳ Processing: %d/%d\n✅ Completed: %d", i+1, total, success))
	}

	thumbLine := "📝 Thumbnail: Original"
	if sess.Thumbnail != "" {
		thumbLine = "🖼️ Thumbnail: Changed"
	}
	captionLine := "📝 Caption: Original"
	if sess.HasFind {
		captionLine = "✏️ Caption: Modified"
	}
	final := fmt.Sprintf("✅ All Done!\n\nProcessed: %d/%d videos\n%s\n%s", success, total, thumbLine, captionLine)

	if statusRef.MessageID != 0 {
		if err := r.adapter.EditText(ctx, statusRef, final, nil); err != nil {
			log.Warn("render summary edit failed", logx.Err(err))
		}
	} else if _, err := r.adapter.SendText(ctx, owner, final, nil); err != nil {
		log.Warn("render summary send failed", logx.Err(err))
	}

	log.Info("edit session processed", logx.Int("videos", total), logx.Int("delivered", success))
}
