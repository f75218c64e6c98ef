package tg

// ChatAction is a restricted enum of Telegram chat-action kinds a handler
// may request via //chat-action.
type ChatAction string

const (
	ChatActionTyping          ChatAction = "typing"
	ChatActionUploadPhoto     ChatAction = "upload_photo"
	ChatActionRecordVideo     ChatAction = "record_video"
	ChatActionUploadVideo     ChatAction = "upload_video"
	ChatActionRecordVoice     ChatAction = "record_voice"
	ChatActionUploadVoice     ChatAction = "upload_voice"
	ChatActionUploadDocument  ChatAction = "upload_document"
	ChatActionChooseSticker   ChatAction = "choose_sticker"
	ChatActionFindLocation    ChatAction = "find_location"
	ChatActionRecordVideoNote ChatAction = "record_video_note"
	ChatActionUploadVideoNote ChatAction = "upload_video_note"
)

var validChatActions = map[ChatAction]bool{
	ChatActionTyping:          true,
	ChatActionUploadPhoto:     true,
	ChatActionRecordVideo:     true,
	ChatActionUploadVideo:     true,
	ChatActionRecordVoice:     true,
	ChatActionUploadVoice:     true,
	ChatActionUploadDocument:  true,
	ChatActionChooseSticker:   true,
	ChatActionFindLocation:    true,
	ChatActionRecordVideoNote: true,
	ChatActionUploadVideoNote: true,
}

// DirectiveKind tags the variant held by a Directive.
type DirectiveKind int

const (
	DirectiveText DirectiveKind = iota
	DirectiveSend
	DirectiveEdit
	DirectiveDelete
	DirectiveButton
	DirectiveRemoveKeyboard
	DirectiveChatAction
	DirectiveSendPhoto
	DirectiveSendFile
	DirectiveDownloadFile
)

// Directive is one parsed command emitted by the handler's stdout, or a
// plain text line destined for the send buffer.
type Directive struct {
	Kind DirectiveKind

	Text   string       // DirectiveText
	Button InlineButton // DirectiveButton
	Action ChatAction   // DirectiveChatAction
	Path   string       // DirectiveSendPhoto, DirectiveSendFile
	FileID FileID       // DirectiveDownloadFile
}
