package constant

const (
	ChatMessageRoleUser  = "user"
	ChatMessageRoleModel = "model"

	DefaultChatName  = "New Chat"
	LoadedChatName   = "Loaded Chat"
	UntitledChatName = "Untitled Chat"

	// Suffixes appended to model output when generation ends on anything other than a clean stop.
	AnnotationTruncated  = "\n\n*(Response possibly truncated)*"
	AnnotationSafety     = "\n\n*(Blocked: Safety)*"
	AnnotationRecitation = "\n\n*(Blocked: Recitation)*"
	AnnotationStopped    = "\n\n*(Stopped: %s)*"
	AnnotationEmpty      = "\n\n*(Empty response received)*"

	// Model turns whose trimmed content starts with one of these are not counted as responses.
	ErrorAnnotationPrefix = "*(Error"
	EmptyAnnotationPrefix = "*(Empty response received)*"

	ResponseCounterFormat = "**(R%d)**\n\n"
	AttachmentNoteFormat  = "\n\n*📁 (Sent with: %s)*"
)

// Session notice levels, rendered by the UI as toasts.
const (
	NoticeInfo    = "info"
	NoticeSuccess = "success"
	NoticeWarning = "warning"
	NoticeError   = "error"
)
