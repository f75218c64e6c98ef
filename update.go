package tg

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UpdateKind classifies a Telegram update into the handful of shapes the
// session protocol cares about.
type UpdateKind int

const (
	UpdateKindUnknown UpdateKind = iota
	UpdateKindText
	UpdateKindDocument
	UpdateKindPhoto
	UpdateKindCallback
)

// PhotoSize is one Telegram-provided resolution of an uploaded photo.
type PhotoSize struct {
	FileID FileID
	Width  int
	Height int
}

// Update wraps a raw Telegram update with the accessors the Dispatcher and
// SessionActor need, without leaking the transport library's types into
// the core.
type Update struct {
	raw tgbotapi.Update
}

func wrapUpdate(u tgbotapi.Update) Update {
	return Update{raw: u}
}

// ID returns the Telegram update_id.
func (u Update) ID() UpdateID {
	return UpdateID(u.raw.UpdateID)
}

// ChatID returns the chat this update belongs to, and false if none can be
// determined.
func (u Update) ChatID() (ChatID, bool) {
	if u.raw.Message != nil {
		return ChatID(u.raw.Message.Chat.ID), true
	}
	if u.raw.CallbackQuery != nil && u.raw.CallbackQuery.Message != nil {
		return ChatID(u.raw.CallbackQuery.Message.Chat.ID), true
	}
	return 0, false
}

// Kind classifies the update.
func (u Update) Kind() UpdateKind {
	switch {
	case u.raw.CallbackQuery != nil:
		return UpdateKindCallback
	case u.raw.Message == nil:
		return UpdateKindUnknown
	case u.raw.Message.Document != nil:
		return UpdateKindDocument
	case len(u.raw.Message.Photo) > 0:
		return UpdateKindPhoto
	case u.raw.Message.Text != "":
		return UpdateKindText
	default:
		return UpdateKindUnknown
	}
}

// Text returns the message text (empty for non-text updates).
func (u Update) Text() string {
	if u.raw.Message == nil {
		return ""
	}
	return u.raw.Message.Text
}

// Document returns the uploaded document's file id, name, and mime type.
func (u Update) Document() (id FileID, fileName, mimeType string, ok bool) {
	if u.raw.Message == nil || u.raw.Message.Document == nil {
		return "", "", "", false
	}
	d := u.raw.Message.Document
	return FileID(d.FileID), d.FileName, d.MimeType, true
}

// Photos returns every resolution Telegram sent for an uploaded photo, in
// the order Telegram provided them.
func (u Update) Photos() []PhotoSize {
	if u.raw.Message == nil {
		return nil
	}
	sizes := make([]PhotoSize, 0, len(u.raw.Message.Photo))
	for _, p := range u.raw.Message.Photo {
		sizes = append(sizes, PhotoSize{FileID: FileID(p.FileID), Width: p.Width, Height: p.Height})
	}
	return sizes
}

// CallbackData returns the callback_data of a button tap.
func (u Update) CallbackData() string {
	if u.raw.CallbackQuery == nil {
		return ""
	}
	return u.raw.CallbackQuery.Data
}

// CallbackQueryID returns the Telegram callback query id, used to
// acknowledge the tap.
func (u Update) CallbackQueryID() string {
	if u.raw.CallbackQuery == nil {
		return ""
	}
	return u.raw.CallbackQuery.ID
}

// Command returns the bot command and its arguments if the message begins
// with one (e.g. "/start foo" -> "start", "foo"), and false otherwise.
func (u Update) Command() (cmd, args string, ok bool) {
	if u.raw.Message == nil || !u.raw.Message.IsCommand() {
		return "", "", false
	}
	return u.raw.Message.Command(), u.raw.Message.CommandArguments(), true
}
