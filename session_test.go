package tg

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSession(t *testing.T, ft *fakeTransport, script string) *SessionActor {
	t.Helper()
	opts := SessionOptions{
		HandlerCommand: "sh -c " + shellQuote(script),
		TempDir:        t.TempDir(),
	}
	sa, err := NewSessionActor(context.Background(), ChatID(1), ft, InputSanitizer{}, opts, testLogger(), textUpdate(1, "hi"), func(ChatID) {})
	require.NoError(t, err)
	return sa
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

// Scenario 1: handler writes "Hello, World!\n" and exits.
func TestScenario_PlainExitAutoFlush(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `printf "Hello, World!\n"`)

	require.Eventually(t, func() bool { return len(ft.sent) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Hello, World!", ft.sent[0].Text)
}

// Scenario 2: two explicit //send directives produce two messages in order.
func TestScenario_TwoSends(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `printf "A\n//send\nB\n//send\n"`)

	require.Eventually(t, func() bool { return len(ft.sent) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "A", ft.sent[0].Text)
	assert.Equal(t, "B", ft.sent[1].Text)
}

// Scenario 3: send then edit targets the same message.
func TestScenario_SendThenEdit(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `printf "X\n//send\nY\n//edit\n"`)

	require.Eventually(t, func() bool { return len(ft.sent) == 1 && len(ft.edited) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "X", ft.sent[0].Text)
	assert.Equal(t, "Y", ft.edited[0].Text)
	assert.Equal(t, ft.sent[0].Chat, ChatID(1))
}

// Scenario 4: send, delete, then edit with no target degrades to send; no
// trailing auto-flush since the buffer is empty at exit.
func TestScenario_SendDeleteEditDegrades(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `printf "X\n//send\n//delete\n//edit\n"`)

	require.Eventually(t, func() bool { return len(ft.deleted) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.Len(t, ft.sent, 1)
	assert.Equal(t, "X", ft.sent[0].Text)
	assert.Empty(t, ft.edited)
}

// Scenario 5: queued buttons attach to the next produced message.
func TestScenario_ButtonsAttachToNextMessage(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `printf "//inline-button callback go Go\n//inline-button url https://e Ex\nPick\n//send\n"`)

	require.Eventually(t, func() bool { return len(ft.sent) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Pick", ft.sent[0].Text)
	require.Len(t, ft.sent[0].Buttons, 2)
	assert.Equal(t, ButtonKindCallback, ft.sent[0].Buttons[0].Kind)
	assert.Equal(t, ButtonKindURL, ft.sent[0].Buttons[1].Kind)
}

func TestSessionActor_NonZeroExitSendsFatalServerError(t *testing.T) {
	ft := newFakeTransport()
	newTestSession(t, ft, `exit 1`)

	require.Eventually(t, func() bool { return len(ft.sent) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Fatal Server Error", ft.sent[0].Text)
}

func TestSessionActor_DownloadFileWritesCompletionLine(t *testing.T) {
	ft := newFakeTransport()
	var capturedPath string
	ft.downloadFn = func(id FileID, destDir, namePrefix string) (string, error) {
		path := filepath.Join(destDir, namePrefix+"-report.pdf")
		capturedPath = path
		return path, os.WriteFile(path, []byte("data"), 0o600)
	}

	opts := SessionOptions{
		HandlerCommand: "sh -c " + shellQuote(`printf "//download-file abc\n"; read line; printf "got:$line\n//send\n"`),
		TempDir:        t.TempDir(),
	}
	sa, err := NewSessionActor(context.Background(), ChatID(1), ft, InputSanitizer{}, opts, testLogger(), textUpdate(1, "hi"), func(ChatID) {})
	require.NoError(t, err)
	_ = sa

	require.Eventually(t, func() bool { return len(ft.sent) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, ft.sent[0].Text, "got:")
	assert.True(t, strings.HasSuffix(capturedPath, "-report.pdf"))
}
