package chat

// Notifications raised by the session and its capability adapters.
var (
	NoticeGenerateFailed = Notification{
		Title:       "Error",
		Description: "Failed to generate response. Please try again.",
		Variant:     VariantDestructive,
	}
	NoticeRecognitionUnsupported = Notification{
		Title:       "Not supported",
		Description: "Speech recognition is not supported in your browser.",
		Variant:     VariantDestructive,
	}
	NoticeListening = Notification{
		Title:       "Listening...",
		Description: "Speak now. Click the microphone again to stop.",
		Variant:     VariantDefault,
	}
	NoticeRecognitionFailed = Notification{
		Title:       "Error",
		Description: "Speech recognition failed. Please try again.",
		Variant:     VariantDestructive,
	}
	NoticeSynthesisUnsupported = Notification{
		Title:       "Not supported",
		Description: "Text-to-speech is not supported in your browser.",
		Variant:     VariantDestructive,
	}
	NoticeSynthesisFailed = Notification{
		Title:       "Error",
		Description: "Failed to speak the text. Please try again.",
		Variant:     VariantDestructive,
	}
	NoticeNothingToExport = Notification{
		Title:       "No conversation to download",
		Description: "Please have a conversation first.",
		Variant:     VariantDestructive,
	}
	NoticeExported = Notification{
		Title:       "Downloaded!",
		Description: "Chat has been downloaded as HTML file.",
		Variant:     VariantDefault,
	}
	NoticeCopied = Notification{
		Title:       "Copied!",
		Description: "Text copied to clipboard.",
		Variant:     VariantDefault,
	}
	NoticeCopyFailed = Notification{
		Title:       "Failed to copy",
		Description: "Please try again or copy manually.",
		Variant:     VariantDestructive,
	}
)
