// Command tgdaemon bridges the Telegram Bot API to a user-supplied
// executable over a line-oriented stdin/stdout protocol, one handler
// process per chat.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	tg "github.com/nxsvr/tg-daemon"
)

type flags struct {
	execute           string
	botID             string
	chatIDs           []int64
	commandsFile      string
	sendHandlerErrors bool
	tgAPIURL          string
	pipeFirstMessage  bool
	noTypingIndicator bool

	proxyType     string
	proxyHost     string
	proxyLogin    string
	proxyPassword string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "tgdaemon",
		Short: "Bridge the Telegram Bot API to a subprocess handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.execute, "execute", "", "handler command line to run per chat (required)")
	cmd.Flags().StringVar(&f.botID, "bot-id", "", "Telegram bot token (required)")
	cmd.Flags().Int64SliceVar(&f.chatIDs, "chat-id", nil, "allow-listed chat id (repeatable)")
	cmd.Flags().StringVar(&f.commandsFile, "commands-file", "", "path to a commands-file to register on startup")
	cmd.Flags().BoolVar(&f.sendHandlerErrors, "send-handler-errors", false, "include exit status and stderr tail in crash diagnostics")
	cmd.Flags().StringVar(&f.tgAPIURL, "tg-api-url", "", "override the Telegram Bot API base URL")
	cmd.Flags().BoolVar(&f.pipeFirstMessage, "pipe-first-message", false, "deliver the first user message on stdin instead of argv")
	cmd.Flags().BoolVar(&f.noTypingIndicator, "no-typing-indicator", false, "disable the automatic typing chat-action heuristic")
	cmd.Flags().StringVar(&f.proxyType, "proxy-type", "", "proxy type for the Bot API client (only \"socks5\" supported)")
	cmd.Flags().StringVar(&f.proxyHost, "proxy-host", "", "proxy host:port")
	cmd.Flags().StringVar(&f.proxyLogin, "proxy-login", "", "proxy auth login")
	cmd.Flags().StringVar(&f.proxyPassword, "proxy-password", "", "proxy auth password")

	_ = cmd.MarkFlagRequired("execute")
	_ = cmd.MarkFlagRequired("bot-id")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var px *tg.ProxySettings
	if f.proxyType != "" {
		px = &tg.ProxySettings{
			Type:     f.proxyType,
			Host:     f.proxyHost,
			Login:    f.proxyLogin,
			Password: f.proxyPassword,
		}
	}

	transport, err := tg.NewBotTransport(f.botID, f.tgAPIURL, px)
	if err != nil {
		return fmt.Errorf("connect to Telegram: %w", err)
	}

	allowList := make([]tg.ChatID, 0, len(f.chatIDs))
	for _, id := range f.chatIDs {
		allowList = append(allowList, tg.ChatID(id))
	}

	dispatcher := tg.NewDispatcher(transport, logger, tg.DispatcherOptions{
		AllowList:    allowList,
		CommandsFile: f.commandsFile,
		SessionOpts: tg.SessionOptions{
			HandlerCommand:    f.execute,
			PipeFirstMessage:  f.pipeFirstMessage,
			SendHandlerErrors: f.sendHandlerErrors,
			TypingIndicator:   !f.noTypingIndicator,
			TempDir:           os.TempDir(),
		},
	})

	logger.Info("starting", slog.String("execute", f.execute), slog.Int("allow_list_size", len(allowList)))
	return dispatcher.Run(ctx)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
