package tg

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeTransport is an in-memory TelegramTransport used across this
// package's tests. It records every call and hands out incrementing
// message ids, mirroring the shape of a real Bot API response closely
// enough to exercise SendBuffer/SessionActor logic without touching the
// network.
type fakeTransport struct {
	mu sync.Mutex

	nextMessageID MessageID
	sent          []sentMessage
	edited        []editedMessage
	deleted       []MessageID
	keyboardsOff  []MessageID
	actions       []ChatAction
	photos        []string
	documents     []string
	commands      []BotCommand
	answeredCbs   []string

	downloadFn func(id FileID, destDir, namePrefix string) (string, error)
	pollFn     func(ctx context.Context, offset UpdateID, timeout time.Duration) ([]Update, error)
}

type sentMessage struct {
	Chat    ChatID
	Text    string
	Buttons []InlineButton
}

type editedMessage struct {
	ID      MessageID
	Text    string
	Buttons []InlineButton
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) PollUpdates(ctx context.Context, offset UpdateID, timeout time.Duration) ([]Update, error) {
	if f.pollFn != nil {
		return f.pollFn(ctx, offset, timeout)
	}
	return nil, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, chat ChatID, text string, buttons []InlineButton) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	f.sent = append(f.sent, sentMessage{Chat: chat, Text: text, Buttons: buttons})
	return f.nextMessageID, nil
}

func (f *fakeTransport) EditMessageText(ctx context.Context, chat ChatID, id MessageID, text string, buttons []InlineButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, editedMessage{ID: id, Text: text, Buttons: buttons})
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chat ChatID, id MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTransport) RemoveMessageKeyboard(ctx context.Context, chat ChatID, id MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyboardsOff = append(f.keyboardsOff, id)
	return nil
}

func (f *fakeTransport) SendChatAction(ctx context.Context, chat ChatID, action ChatAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chat ChatID, path string) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	f.photos = append(f.photos, path)
	return f.nextMessageID, nil
}

func (f *fakeTransport) SendDocument(ctx context.Context, chat ChatID, path string) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	f.documents = append(f.documents, path)
	return f.nextMessageID, nil
}

func (f *fakeTransport) DownloadFile(ctx context.Context, id FileID, destDir, namePrefix string) (string, error) {
	if f.downloadFn != nil {
		return f.downloadFn(id, destDir, namePrefix)
	}
	return "", fmt.Errorf("no downloadFn configured")
}

func (f *fakeTransport) SetMyCommands(ctx context.Context, cmds []BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = cmds
	return nil
}

func (f *fakeTransport) AnswerCallbackQuery(ctx context.Context, queryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answeredCbs = append(f.answeredCbs, queryID)
	return nil
}
