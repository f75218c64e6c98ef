package tg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

const (
	stdinQueueDepth  = 64
	downloadReqDepth = 8
	stderrTailCap    = 4096

	// typingIdleThreshold is how long a session may go without producing
	// output before the typing indicator heuristic re-issues a chat action.
	typingIdleThreshold = 2 * time.Second
	typingPollInterval  = 500 * time.Millisecond
)

// SessionOptions carries the daemon-wide settings a SessionActor needs at
// spawn time.
type SessionOptions struct {
	// HandlerCommand is the full command line for the handler executable,
	// e.g. "python3 handler.py --verbose"; tokenised with shlex rather than
	// limited to a bare path.
	HandlerCommand string

	// PipeFirstMessage delivers the first user message as the child's first
	// stdin line instead of its first argv element.
	PipeFirstMessage bool

	// SendHandlerErrors includes exit status and captured stderr tail in the
	// diagnostic message sent on a non-zero handler exit.
	SendHandlerErrors bool

	// TypingIndicator re-issues a typing chat action while the handler is
	// between sends.
	TypingIndicator bool

	// TempDir is the directory downloaded files are staged under.
	TempDir string
}

// SessionActor is the per-chat protocol loop: it owns the handler child
// process, its SendBuffer, and the inbound-message queue, and couples
// Telegram updates, handler stdout, and child exit.
type SessionActor struct {
	chatID    ChatID
	transport TelegramTransport
	sanitizer InputSanitizer
	opts      SessionOptions
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	parser *OutputParser
	buffer SendBuffer

	stdinQueue  chan string
	downloadReq chan FileID
	writerDone  chan struct{}
	stdoutDone  chan struct{}
	exited      chan struct{}

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer

	onExit func(ChatID)

	startedAt       time.Time
	lastActivity    atomic.Int64 // unix nanos, touched on stdout output and after each typing action
	downloadedFiles []string     // paths handleDownload created, removed on exit
}

// NewSessionActor spawns the handler process and starts the protocol loop
// goroutines. first is the update that created this session; it is
// formatted exactly as Enqueue would format it, so a first contact that is
// a document/photo/callback produces the matching //tg-* line instead of
// being run through text sanitization a second time.
func NewSessionActor(
	parentCtx context.Context,
	chatID ChatID,
	transport TelegramTransport,
	sanitizer InputSanitizer,
	opts SessionOptions,
	logger *slog.Logger,
	first Update,
	onExit func(ChatID),
) (*SessionActor, error) {
	firstLine := formatUpdateLine(sanitizer, first)

	argv, err := shlex.Split(opts.HandlerCommand)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("parse handler command %q: %w", opts.HandlerCommand, err)
	}
	if !opts.PipeFirstMessage {
		argv = append(argv, firstLine)
	}

	ctx, cancel := context.WithCancel(parentCtx)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("CHAT_ID=%s", chatID.String()))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start handler: %w", err)
	}

	sa := &SessionActor{
		chatID:      chatID,
		transport:   transport,
		sanitizer:   sanitizer,
		opts:        opts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		cmd:         cmd,
		stdin:       stdin,
		stdinQueue:  make(chan string, stdinQueueDepth),
		downloadReq: make(chan FileID, downloadReqDepth),
		writerDone:  make(chan struct{}),
		stdoutDone:  make(chan struct{}),
		exited:      make(chan struct{}),
		onExit:      onExit,
		startedAt:   time.Now(),
	}
	sa.parser = NewOutputParser(func(reason string) {
		logger.Warn("dropped invalid directive", slog.String("chat_id", chatID.String()), slog.String("reason", reason))
	})

	if opts.PipeFirstMessage {
		sa.stdinQueue <- firstLine
	}

	sa.lastActivity.Store(time.Now().UnixNano())

	go sa.pumpStdout(stdout)
	go sa.pumpStderr(stderr)
	go sa.runWriter()
	go sa.waitExit()
	if opts.TypingIndicator {
		go sa.runTypingIndicator()
	}

	return sa, nil
}

// runTypingIndicator re-issues a typing chat action whenever the session
// has gone more than typingIdleThreshold without producing output, so a
// slow handler doesn't leave the user staring at a stale chat.
func (sa *SessionActor) runTypingIndicator() {
	ticker := time.NewTicker(typingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sa.exited:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, sa.lastActivity.Load()))
			if idle >= typingIdleThreshold {
				sa.logTransportErr(sa.transport.SendChatAction(sa.ctx, sa.chatID, ChatActionTyping))
				sa.lastActivity.Store(time.Now().UnixNano())
			}
		}
	}
}

// Enqueue routes one Telegram update into the child's stdin, formatted as
// the handler's protocol expects. Called by the Dispatcher in update-id
// order; callers must call it sequentially per chat to preserve ordering.
func (sa *SessionActor) Enqueue(u Update) {
	line := formatUpdateLine(sa.sanitizer, u)
	select {
	case sa.stdinQueue <- line:
	case <-sa.exited:
	}
}

// formatUpdateLine renders one Telegram update as the line the handler
// sees, either as sanitised user text or as one of the //tg-* callback
// lines. Shared by SessionActor.Enqueue and the Dispatcher's first-message
// handling at session creation.
func formatUpdateLine(sanitizer InputSanitizer, u Update) string {
	switch u.Kind() {
	case UpdateKindText:
		if cmd, args, ok := u.Command(); ok {
			return sanitizer.SanitizeText("/" + cmd + " " + args)
		}
		return sanitizer.SanitizeText(u.Text())
	case UpdateKindDocument:
		return formatDocumentLine(sanitizer, u)
	case UpdateKindPhoto:
		return formatPhotoLine(u)
	case UpdateKindCallback:
		return "//tg-callback " + u.CallbackData()
	default:
		return "//tg-unknown"
	}
}

func formatDocumentLine(sanitizer InputSanitizer, u Update) string {
	id, fileName, mimeType, _ := u.Document()
	line := fmt.Sprintf("//tg-document --file-id %s", id)
	if sanitized, ok := sanitizer.SanitizeFileName(fileName); ok {
		line += " --file-name " + sanitized
	}
	if sanitized, ok := sanitizer.SanitizeMimeType(mimeType); ok {
		line += " --mime-type " + sanitized
	}
	return line
}

func formatPhotoLine(u Update) string {
	line := "//tg-photo"
	for _, p := range u.Photos() {
		line += fmt.Sprintf(" %s %d %d", p.FileID, p.Width, p.Height)
	}
	return line
}

// runWriter is the single owner of the child's stdin; it interleaves
// queued callback/text lines with fire-and-forget file downloads, holding
// exclusive control of the pipe for the duration of each download so that
// no other callback line is ever interleaved with a //tg-file-download
// response.
func (sa *SessionActor) runWriter() {
	defer close(sa.writerDone)
	for {
		select {
		case <-sa.exited:
			return
		case line, ok := <-sa.stdinQueue:
			if !ok {
				return
			}
			sa.writeLine(line)
		case id, ok := <-sa.downloadReq:
			if !ok {
				continue
			}
			sa.handleDownload(id)
		}
	}
}

func (sa *SessionActor) writeLine(line string) {
	if _, err := io.WriteString(sa.stdin, line+"\n"); err != nil {
		sa.logger.Warn("write to handler stdin failed", slog.String("chat_id", sa.chatID.String()), slog.Any("error", err))
	}
}

func (sa *SessionActor) handleDownload(id FileID) {
	prefix := fmt.Sprintf("tgdaemon-%s-%s", sa.chatID.String(), uuid.NewString())

	destPath, err := sa.transport.DownloadFile(sa.ctx, id, sa.opts.TempDir, prefix)
	if err != nil {
		sa.logger.Warn("download-file failed", slog.String("chat_id", sa.chatID.String()), slog.String("file_id", string(id)), slog.Any("error", err))
		return
	}
	sa.downloadedFiles = append(sa.downloadedFiles, destPath)
	sa.writeLine("//tg-file-download " + destPath)
}

// pumpStdout reads the child's stdout, feeds the OutputParser, and applies
// every produced Directive in emission order.
func (sa *SessionActor) pumpStdout(r io.Reader) {
	defer close(sa.stdoutDone)

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sa.lastActivity.Store(time.Now().UnixNano())
			for _, d := range sa.parser.Feed(buf[:n]) {
				sa.applyDirective(d)
			}
		}
		if err != nil {
			for _, d := range sa.parser.Close() {
				sa.applyDirective(d)
			}
			return
		}
	}
}

func (sa *SessionActor) pumpStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sa.stderrMu.Lock()
			sa.stderrBuf.Write(buf[:n])
			if sa.stderrBuf.Len() > stderrTailCap {
				sa.stderrBuf.Next(sa.stderrBuf.Len() - stderrTailCap)
			}
			sa.stderrMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (sa *SessionActor) stderrTail() string {
	sa.stderrMu.Lock()
	defer sa.stderrMu.Unlock()
	return sa.stderrBuf.String()
}

// applyDirective mutates the SendBuffer and issues transport calls for one
// Directive. It runs on the stdout-pumping goroutine, which is the sole
// mutator of the SendBuffer, so no further locking is needed.
func (sa *SessionActor) applyDirective(d Directive) {
	switch d.Kind {
	case DirectiveText:
		sa.buffer.AppendText(d.Text)
	case DirectiveSend:
		sa.logTransportErr(sa.buffer.FlushSend(sa.ctx, sa.transport, sa.chatID))
	case DirectiveEdit:
		sa.logTransportErr(sa.buffer.FlushEdit(sa.ctx, sa.transport, sa.chatID))
	case DirectiveDelete:
		sa.logTransportErr(sa.buffer.DeleteLast(sa.ctx, sa.transport, sa.chatID))
	case DirectiveButton:
		sa.buffer.AppendButton(d.Button)
	case DirectiveRemoveKeyboard:
		sa.logTransportErr(sa.buffer.RemoveKeyboard(sa.ctx, sa.transport, sa.chatID))
	case DirectiveChatAction:
		sa.logTransportErr(sa.transport.SendChatAction(sa.ctx, sa.chatID, d.Action))
	case DirectiveSendPhoto:
		sa.sendAttachment(d.Path, true)
	case DirectiveSendFile:
		sa.sendAttachment(d.Path, false)
	case DirectiveDownloadFile:
		select {
		case sa.downloadReq <- d.FileID:
		case <-sa.exited:
		}
	}
}

// sendAttachment handles //send-photo and //send-file. An inaccessible
// path is treated as a buggy handler and terminates the child process.
func (sa *SessionActor) sendAttachment(path string, photo bool) {
	if _, err := os.Stat(path); err != nil {
		sa.logger.Error("attachment inaccessible, terminating handler",
			slog.String("chat_id", sa.chatID.String()), slog.String("path", path), slog.Any("error", err))
		sa.killChild()
		return
	}

	var sendErr error
	if photo {
		_, sendErr = sa.transport.SendPhoto(sa.ctx, sa.chatID, path)
	} else {
		_, sendErr = sa.transport.SendDocument(sa.ctx, sa.chatID, path)
	}
	sa.logTransportErr(sendErr)
}

func (sa *SessionActor) logTransportErr(err error) {
	if err != nil {
		sa.logger.Warn("transport call failed", slog.String("chat_id", sa.chatID.String()), slog.Any("error", err))
	}
}

func (sa *SessionActor) killChild() {
	if sa.cmd.Process != nil {
		_ = sa.cmd.Process.Kill()
	}
}

// removeDownloadedFiles best-effort deletes every file handleDownload
// staged during this session's lifetime. Called after the writer goroutine
// has exited, so downloadedFiles is no longer being appended to.
func (sa *SessionActor) removeDownloadedFiles() {
	for _, path := range sa.downloadedFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			sa.logger.Warn("failed to remove downloaded file", slog.String("chat_id", sa.chatID.String()), slog.String("path", path), slog.Any("error", err))
		}
	}
}

// waitExit blocks until the child exits, then auto-flushes trailing text
// and sends a diagnostic message if the exit was abnormal.
func (sa *SessionActor) waitExit() {
	err := sa.cmd.Wait()
	<-sa.stdoutDone

	close(sa.exited)
	sa.cancel()
	<-sa.writerDone

	sa.removeDownloadedFiles()
	sa.logTransportErr(sa.buffer.AutoFlush(context.Background(), sa.transport, sa.chatID))

	if err != nil {
		msg := "Fatal Server Error"
		if sa.opts.SendHandlerErrors {
			msg = fmt.Sprintf("Fatal Server Error\nexit: %v\nstderr:\n%s", err, sa.stderrTail())
		}
		sa.logTransportErr(sa.send(msg))
	}

	if sa.onExit != nil {
		sa.onExit(sa.chatID)
	}
}

func (sa *SessionActor) send(text string) error {
	_, err := sa.transport.SendMessage(context.Background(), sa.chatID, text, nil)
	return err
}

// Shutdown terminates the child, drains its stdout up to deadline, and
// auto-flushes the buffer; a survivor past the deadline is force-killed.
func (sa *SessionActor) Shutdown(deadline time.Duration) {
	if sa.cmd.Process != nil {
		_ = sa.cmd.Process.Signal(os.Interrupt)
	}
	_ = sa.stdin.Close()

	select {
	case <-sa.exited:
	case <-time.After(deadline):
		sa.killChild()
		<-sa.exited
	}
}
