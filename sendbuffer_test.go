package tg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBuffer_FlushSendEmptyIsNoOp(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	assert.Empty(t, ft.sent)
	assert.Equal(t, MessageID(0), b.LastMessageID())
}

func TestSendBuffer_FlushSendSetsLastMessageID(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("hello")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	require.Len(t, ft.sent, 1)
	assert.Equal(t, "hello", ft.sent[0].Text)
	assert.NotEqual(t, MessageID(0), b.LastMessageID())
}

func TestSendBuffer_EditWithNoPriorSendDegradesToSend(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("first edit ever")
	require.NoError(t, b.FlushEdit(context.Background(), ft, ChatID(1)))
	assert.Empty(t, ft.edited)
	require.Len(t, ft.sent, 1)
	assert.Equal(t, "first edit ever", ft.sent[0].Text)
}

func TestSendBuffer_EditAfterSendEditsSameMessage(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("X")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	id := b.LastMessageID()

	b.AppendText("Y")
	require.NoError(t, b.FlushEdit(context.Background(), ft, ChatID(1)))
	require.Len(t, ft.edited, 1)
	assert.Equal(t, id, ft.edited[0].ID)
	assert.Equal(t, "Y", ft.edited[0].Text)
	assert.Equal(t, id, b.LastMessageID())
}

func TestSendBuffer_DeleteThenEditDegradesToSend(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("X")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))

	require.NoError(t, b.DeleteLast(context.Background(), ft, ChatID(1)))
	assert.Equal(t, MessageID(0), b.LastMessageID())

	b.AppendText("Y")
	require.NoError(t, b.FlushEdit(context.Background(), ft, ChatID(1)))
	assert.Empty(t, ft.edited)
	require.Len(t, ft.sent, 2)
	assert.Equal(t, "Y", ft.sent[1].Text)
}

func TestSendBuffer_DeleteWithNoLastIsNoOp(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	require.NoError(t, b.DeleteLast(context.Background(), ft, ChatID(1)))
	assert.Empty(t, ft.deleted)
}

func TestSendBuffer_ButtonsAttachToNextMessageThenClear(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendButton(InlineButton{Kind: ButtonKindCallback, Data: "go", Label: "Go"})
	b.AppendButton(InlineButton{Kind: ButtonKindURL, Href: "https://e", Label: "Ex"})
	b.AppendText("Pick")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	require.Len(t, ft.sent, 1)
	assert.Len(t, ft.sent[0].Buttons, 2)

	b.AppendText("next")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	assert.Empty(t, ft.sent[1].Buttons)
}

func TestSendBuffer_RemoveKeyboardLeavesPendingLinesUntouched(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("X")
	require.NoError(t, b.FlushSend(context.Background(), ft, ChatID(1)))
	id := b.LastMessageID()

	b.AppendText("queued for later")
	require.NoError(t, b.RemoveKeyboard(context.Background(), ft, ChatID(1)))
	require.Len(t, ft.keyboardsOff, 1)
	assert.Equal(t, id, ft.keyboardsOff[0])
	assert.Equal(t, "queued for later", b.text())
}

func TestSendBuffer_AutoFlushSendsTrailingContentOnce(t *testing.T) {
	ft := newFakeTransport()
	var b SendBuffer
	b.AppendText("trailing")
	require.NoError(t, b.AutoFlush(context.Background(), ft, ChatID(1)))
	require.Len(t, ft.sent, 1)
	assert.Equal(t, "trailing", ft.sent[0].Text)
}
