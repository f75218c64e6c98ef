package tg

import (
	"context"
	"strings"
)

// SendBuffer accumulates a pending outgoing message and tracks the
// identifier of the last message sent in a session, so that //edit and
// //delete know what to target. An //edit with no last message degrades
// transparently to a send; see FlushEdit.
type SendBuffer struct {
	lines         []string
	buttons       []InlineButton
	lastMessageID MessageID // 0 means unset
}

// AppendText appends a line of handler-produced text to the pending
// message.
func (b *SendBuffer) AppendText(line string) {
	b.lines = append(b.lines, line)
}

// AppendButton queues a button for the next message produced by Flush* or
// AutoFlush.
func (b *SendBuffer) AppendButton(btn InlineButton) {
	b.buttons = append(b.buttons, btn)
}

// LastMessageID returns the identifier of the most recently sent message in
// this session, or 0 if none has been sent yet.
func (b *SendBuffer) LastMessageID() MessageID {
	return b.lastMessageID
}

func (b *SendBuffer) text() string {
	return strings.Join(b.lines, "\n")
}

func (b *SendBuffer) clear() {
	b.lines = nil
	b.buttons = nil
}

// FlushSend sends the accumulated lines as a new message with the queued
// buttons as reply markup, clears both, and records the new last message
// id. If lines is empty, this is a no-op on the wire (queued buttons are
// left pending for the next message, by design: the handler has not
// produced a body for them yet).
func (b *SendBuffer) FlushSend(ctx context.Context, t TelegramTransport, chat ChatID) error {
	return b.doSend(ctx, t, chat)
}

func (b *SendBuffer) doSend(ctx context.Context, t TelegramTransport, chat ChatID) error {
	if len(b.lines) == 0 {
		return nil
	}
	id, err := t.SendMessage(ctx, chat, b.text(), b.buttons)
	if err != nil {
		return err
	}
	b.lastMessageID = id
	b.clear()
	return nil
}

// FlushEdit replaces the last sent message's content with the accumulated
// lines and queued buttons. If no message has been sent yet in this
// session, it degrades transparently to FlushSend.
func (b *SendBuffer) FlushEdit(ctx context.Context, t TelegramTransport, chat ChatID) error {
	if b.lastMessageID == 0 {
		return b.doSend(ctx, t, chat)
	}
	if err := t.EditMessageText(ctx, chat, b.lastMessageID, b.text(), b.buttons); err != nil {
		return err
	}
	b.clear()
	return nil
}

// DeleteLast deletes the last sent message and clears lastMessageID, so a
// subsequent edit degrades to send. Requires a last message; a no-op if
// none is set.
func (b *SendBuffer) DeleteLast(ctx context.Context, t TelegramTransport, chat ChatID) error {
	if b.lastMessageID == 0 {
		return nil
	}
	if err := t.DeleteMessage(ctx, chat, b.lastMessageID); err != nil {
		return err
	}
	b.lastMessageID = 0
	return nil
}

// RemoveKeyboard edits the last message to retain its existing text with no
// reply markup. It does not touch the pending lines or buttons: those
// remain queued for the next message.
func (b *SendBuffer) RemoveKeyboard(ctx context.Context, t TelegramTransport, chat ChatID) error {
	if b.lastMessageID == 0 {
		return nil
	}
	return t.RemoveMessageKeyboard(ctx, chat, b.lastMessageID)
}

// AutoFlush is invoked when the handler exits; it emits any trailing
// unsent text exactly as FlushSend would.
func (b *SendBuffer) AutoFlush(ctx context.Context, t TelegramTransport, chat ChatID) error {
	return b.doSend(ctx, t, chat)
}
