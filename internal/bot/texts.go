package bot

const (
	ownerPanelText = "🎬 Video Editor Bot - Owner Panel\n\n" +
		"📹 Video Features:\n" +
		"• Send video(s) to edit\n" +
		"• Change thumbnails (single/bulk)\n" +
		"• Replace text in captions\n\n" +
		"📢 Commands:\n" +
		"/broadcast - Broadcast message\n" +
		"/users - List all users\n" +
		"/stats - View statistics\n" +
		"/cancel - Cancel current operation\n\n" +
		"Just send videos to start editing!"

	guestWelcomeText = "🎬 Welcome to Video Editor Bot!\n\n" +
		"This bot is currently in owner-only mode.\n" +
		"Contact the admin for access."

	ownerOnlyVideoText = "⛔ This bot is for owner only!"
	ownerOnlyText      = "⛔ Owner only!"

	cancelledText = "❌ Operation cancelled!"

	noVideosText       = "❌ No videos to process!"
	videosFirstText    = "❌ Send videos first, then thumbnail!"
	thumbnailSavedText = "✅ Thumbnail saved!\n\n" +
		"Do you want to replace any text in captions?\n" +
		"• Type 'yes' to replace text\n" +
		"• Type 'no' to skip and process videos"
	findPromptText = "🔍 Find & Replace\n\n" +
		"Send the text you want to FIND in captions:"

	broadcastModeText = "📢 Broadcast Mode\n\n" +
		"Send me the message/video to broadcast to all users.\n\n" +
		"Use /cancel to exit."

	noUsersText = "📭 No users yet!"
)
