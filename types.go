// Package tg implements a daemon that bridges the Telegram Bot API to a
// line-oriented subprocess protocol: each chat gets its own handler process,
// fed user messages on stdin and translated from commands on stdout into
// Telegram API calls.
package tg

import "fmt"

// ChatID is the opaque identifier of a Telegram chat; it doubles as the
// session key in the Dispatcher's chat→session map.
type ChatID int64

func (c ChatID) String() string {
	return fmt.Sprintf("%d", int64(c))
}

// UpdateID is a monotonic Telegram update identifier. The Dispatcher tracks
// the highest one it has acknowledged and requests strictly greater ones on
// the next long-poll.
type UpdateID int64

// MessageID is the opaque identifier of a sent Telegram message, held by a
// SendBuffer as the "last sent" reference for subsequent edit/delete.
type MessageID int

// FileID is an opaque Telegram file handle, produced by update decoding and
// consumed by download requests.
type FileID string

// ButtonKind distinguishes the two inline-button variants this protocol
// understands.
type ButtonKind int

const (
	// ButtonKindCallback attaches callback_data; taps are echoed back to the
	// handler as a //tg-callback line.
	ButtonKindCallback ButtonKind = iota
	// ButtonKindURL opens an absolute URL when tapped.
	ButtonKindURL
)

// InlineButton is one button in the queue attached to the next produced
// message. Data and Label come from the handler's //inline-button
// directive; Href is only meaningful for ButtonKindURL.
type InlineButton struct {
	Kind  ButtonKind
	Data  string // callback_data, single token
	Href  string // absolute URL, single token
	Label string // free text, rest of the line
}
