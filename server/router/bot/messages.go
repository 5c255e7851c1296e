package bot

// User-facing texts.
const (
	msgStart = "👋 Hi! Send me any text message, and I'll save it to termbin.com and give you the link.\n\n" + capabilities

	capabilities = "What I can do:\n" +
		"• Text: uploaded to termbin.com (archive mode) or answered by the AI (conversation mode)\n" +
		"• Photo: I read the text in it\n" +
		"• Voice: I transcribe it\n\n" +
		"Commands:\n" +
		"/chat - start a conversation with the AI\n" +
		"/exit - leave the conversation\n" +
		"/mode - show the current mode\n" +
		"/say <text> - read text aloud\n" +
		"/help - show this message"

	msgHelp = capabilities

	msgChatEntered     = "💬 Conversation mode on. Send me a message, photo or voice note. Use /exit to leave."
	msgChatUnavailable = "\n\n⚠️ The AI backend is not configured, so replies are unavailable."
	msgChatExited      = "📦 Conversation ended. Text messages are archived to termbin.com again."

	msgModeArchive      = "Current mode: archive. Text messages are uploaded to termbin.com."
	msgModeConversation = "Current mode: conversation (%d messages in history)."

	msgSayUsage       = "Usage: /say <text>"
	msgUnknownCommand = "Unknown command. Send /help to see what I can do."
	msgUnsupported    = "I can only handle text, photos and voice messages. Send /help to see what I can do."

	msgUploading = "⏳ Uploading to termbin.com..."
	msgArchived  = "✅ Done!\n\n🔗 "

	msgNoTextFound     = "No text found in the image."
	msgNoSpeech        = "No speech recognized."
	msgEmptyCompletion = "The AI returned an empty reply."
	msgFullText        = "…\n\n🔗 Full text: "

	msgTransportFailed = "❌ Could not fetch your file from Telegram. Please try again."
	msgBackendDown     = "❌ The %s service is unavailable right now. Please try again later."
	msgBackendMissing  = "⚠️ The %s service is not configured."
	msgBackendTimeout  = "⌛ The %s service took too long to respond. Please try again."
	msgPayloadTooLarge = "❌ The file is too large (Telegram bots can download up to 20 MB)."
	msgGenericFailure  = "❌ Something went wrong. Please try again."
)
