package tg

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	pollTimeout       = 50 * time.Second
	backoffInitial    = 500 * time.Millisecond
	backoffMax        = 30 * time.Second
	shutdownDrainTime = 3 * time.Second
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	AllowList    []ChatID // empty means every chat is allowed
	CommandsFile string
	SessionOpts  SessionOptions
}

// Dispatcher owns the update long-poll loop and the chat→session map. The
// map is guarded by mu. Session-exit notifications normally arrive on a
// channel and are applied from the Run goroutine; when that channel is
// full, the exiting session's goroutine removes its entry directly.
type Dispatcher struct {
	transport TelegramTransport
	sanitizer InputSanitizer
	logger    *slog.Logger
	opts      DispatcherOptions

	allowList map[ChatID]bool

	mu       sync.Mutex
	sessions map[ChatID]*SessionActor

	exitedCh chan ChatID
	offset   UpdateID
}

// NewDispatcher constructs a Dispatcher ready to Run.
func NewDispatcher(transport TelegramTransport, logger *slog.Logger, opts DispatcherOptions) *Dispatcher {
	allow := make(map[ChatID]bool, len(opts.AllowList))
	for _, id := range opts.AllowList {
		allow[id] = true
	}
	return &Dispatcher{
		transport: transport,
		logger:    logger,
		opts:      opts,
		allowList: allow,
		sessions:  make(map[ChatID]*SessionActor),
		exitedCh:  make(chan ChatID, 16),
	}
}

// Run registers the command menu (if configured), then long-polls updates
// until ctx is cancelled or polling fails with a FatalTransportError,
// fanning shutdown out to every live session before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.opts.CommandsFile != "" {
		cmds, err := LoadCommandsFile(d.opts.CommandsFile)
		if err != nil {
			return err
		}
		if err := d.transport.SetMyCommands(ctx, cmds); err != nil {
			return err
		}
	}

	backoff := backoffInitial
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case chatID := <-d.exitedCh:
			d.removeSession(chatID)
			continue
		default:
		}

		updates, err := d.transport.PollUpdates(ctx, d.offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				d.shutdown()
				return nil
			}
			if isFatalTransportErr(err) {
				d.shutdown()
				return err
			}
			d.logger.Warn("poll updates failed, retrying", slog.Any("error", err), slog.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				d.shutdown()
				return nil
			}
			backoff = minDuration(backoff*2, backoffMax)
			continue
		}
		backoff = backoffInitial

		d.drainExited()
		for _, u := range updates {
			d.handle(ctx, u)
			if u.ID() >= d.offset {
				d.offset = u.ID() + 1
			}
		}
	}
}

// drainExited applies any pending session-exit notifications before
// routing the next batch, so a session whose exit was already reported is
// not routed updates from that batch. A session that exits while a batch is
// being routed stays in the map until the next drain.
func (d *Dispatcher) drainExited() {
	for {
		select {
		case chatID := <-d.exitedCh:
			d.removeSession(chatID)
		default:
			return
		}
	}
}

func (d *Dispatcher) removeSession(chatID ChatID) {
	d.mu.Lock()
	delete(d.sessions, chatID)
	d.mu.Unlock()
}

// handle extracts the chat id, enforces the allow-list, gets or creates the
// session for that chat, and routes the update to it.
func (d *Dispatcher) handle(ctx context.Context, u Update) {
	chatID, ok := u.ChatID()
	if !ok {
		// No chat id could be determined; nothing to route to, suppressed.
		return
	}

	if len(d.allowList) > 0 && !d.allowList[chatID] {
		if _, err := d.transport.SendMessage(ctx, chatID, "Unauthorized", nil); err != nil {
			d.logger.Warn("failed to send Unauthorized notice", slog.String("chat_id", chatID.String()), slog.Any("error", err))
		}
		return
	}

	if u.Kind() == UpdateKindCallback {
		if err := d.transport.AnswerCallbackQuery(ctx, u.CallbackQueryID()); err != nil {
			d.logger.Warn("failed to answer callback query", slog.String("chat_id", chatID.String()), slog.Any("error", err))
		}
	}

	session := d.getSession(chatID)
	if session == nil {
		// The update that creates a session delivers its content as the
		// child's first argument or first stdin line; it must not also be
		// replayed through Enqueue.
		d.createSession(ctx, chatID, u)
		return
	}

	session.Enqueue(u)
}

func (d *Dispatcher) getSession(chatID ChatID) *SessionActor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[chatID]
}

func (d *Dispatcher) createSession(ctx context.Context, chatID ChatID, first Update) *SessionActor {
	session, err := NewSessionActor(ctx, chatID, d.transport, d.sanitizer, d.opts.SessionOpts, d.logger, first, d.onSessionExit)
	if err != nil {
		d.logger.Error("failed to spawn handler", slog.String("chat_id", chatID.String()), slog.Any("error", err))
		if _, sendErr := d.transport.SendMessage(ctx, chatID, "Fatal Server Error", nil); sendErr != nil {
			d.logger.Warn("failed to notify spawn failure", slog.String("chat_id", chatID.String()), slog.Any("error", sendErr))
		}
		return nil
	}

	d.mu.Lock()
	d.sessions[chatID] = session
	d.mu.Unlock()
	return session
}

func (d *Dispatcher) onSessionExit(chatID ChatID) {
	select {
	case d.exitedCh <- chatID:
	default:
		d.removeSession(chatID)
	}
}

// shutdown fans termination out to every live session concurrently.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	sessions := make([]*SessionActor, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			s.Shutdown(shutdownDrainTime)
			return nil
		})
	}
	_ = g.Wait()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// FatalTransportError marks a transport error as unrecoverable: a
// misconfiguration that should terminate the daemon rather than be
// retried.
type FatalTransportError struct {
	Err error
}

func (e *FatalTransportError) Error() string { return "fatal transport error: " + e.Err.Error() }
func (e *FatalTransportError) Unwrap() error { return e.Err }

func isFatalTransportErr(err error) bool {
	var fatal *FatalTransportError
	return errors.As(err, &fatal)
}
