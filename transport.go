package tg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/net/proxy"
)

// BotCommand is one entry of the /setMyCommands menu, parsed from the
// commands-file.
type BotCommand struct {
	Name        string
	Description string
}

// TelegramTransport is the abstract façade over the Bot HTTP API required
// by the session/dispatcher core. The concrete implementation below is the
// only out-of-core-scope collaborator the rest of this package depends on.
type TelegramTransport interface {
	PollUpdates(ctx context.Context, offset UpdateID, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chat ChatID, text string, buttons []InlineButton) (MessageID, error)
	EditMessageText(ctx context.Context, chat ChatID, id MessageID, text string, buttons []InlineButton) error
	DeleteMessage(ctx context.Context, chat ChatID, id MessageID) error
	RemoveMessageKeyboard(ctx context.Context, chat ChatID, id MessageID) error
	SendChatAction(ctx context.Context, chat ChatID, action ChatAction) error
	SendPhoto(ctx context.Context, chat ChatID, path string) (MessageID, error)
	SendDocument(ctx context.Context, chat ChatID, path string) (MessageID, error)
	DownloadFile(ctx context.Context, id FileID, destDir, namePrefix string) (destPath string, err error)
	SetMyCommands(ctx context.Context, cmds []BotCommand) error
	AnswerCallbackQuery(ctx context.Context, queryID string) error
}

// ProxySettings configures an optional SOCKS5 proxy for the Bot API client.
type ProxySettings struct {
	Type     string // only "socks5" is currently supported
	Host     string
	Login    string
	Password string
}

// BotTransport is the concrete TelegramTransport backed by
// go-telegram-bot-api.
type BotTransport struct {
	bot   *tgbotapi.BotAPI
	token string
}

// NewBotTransport connects to the Telegram Bot API, optionally through a
// SOCKS5 proxy, and returns a ready-to-use transport.
func NewBotTransport(botToken, apiURL string, px *ProxySettings) (*BotTransport, error) {
	bot, err := botConnect(botToken, apiURL, px)
	if err != nil {
		return nil, err
	}
	return &BotTransport{bot: bot, token: botToken}, nil
}

func botConnect(botToken, apiURL string, px *ProxySettings) (*tgbotapi.BotAPI, error) {
	if px == nil {
		if apiURL == "" {
			return tgbotapi.NewBotAPI(botToken)
		}
		return tgbotapi.NewBotAPIWithAPIEndpoint(botToken, apiURL+"/bot%s/%s")
	}

	switch px.Type {
	case "socks5":
		auth := proxy.Auth{User: px.Login, Password: px.Password}
		dialer, err := proxy.SOCKS5("tcp", px.Host, &auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("connect to proxy: %w", err)
		}
		client := &http.Client{Transport: &http.Transport{Dial: dialer.Dial}}
		endpoint := tgbotapi.APIEndpoint
		if apiURL != "" {
			endpoint = apiURL + "/bot%s/%s"
		}
		return tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	default:
		return nil, fmt.Errorf("unknown proxy type %q", px.Type)
	}
}

// SelfID returns the bot's own Telegram user id.
func (t *BotTransport) SelfID() int64 {
	return t.bot.Self.ID
}

// PollUpdates performs one long-poll call for updates strictly greater than
// offset-1 and returns them decoded into this package's Update wrapper.
func (t *BotTransport) PollUpdates(ctx context.Context, offset UpdateID, timeout time.Duration) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout / time.Second)

	raw, err := t.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	updates := make([]Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, wrapUpdate(u))
	}
	return updates, nil
}

// buildMarkup lays out one button per row, in queue order: the protocol
// gives no row-grouping syntax, so a stacked keyboard is the only layout
// that preserves the handler's ordering unambiguously.
func buildMarkup(buttons []InlineButton) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		switch b.Kind {
		case ButtonKindURL:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.Href)))
		default:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)))
		}
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func (t *BotTransport) SendMessage(ctx context.Context, chat ChatID, text string, buttons []InlineButton) (MessageID, error) {
	msg := tgbotapi.NewMessage(int64(chat), text)
	if m := buildMarkup(buttons); m != nil {
		msg.ReplyMarkup = *m
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	return MessageID(sent.MessageID), nil
}

func (t *BotTransport) EditMessageText(ctx context.Context, chat ChatID, id MessageID, text string, buttons []InlineButton) error {
	msg := tgbotapi.NewEditMessageText(int64(chat), int(id), text)
	if m := buildMarkup(buttons); m != nil {
		msg.ReplyMarkup = m
	}
	_, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

func (t *BotTransport) DeleteMessage(ctx context.Context, chat ChatID, id MessageID) error {
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(int64(chat), int(id)))
	if err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	return nil
}

func (t *BotTransport) RemoveMessageKeyboard(ctx context.Context, chat ChatID, id MessageID) error {
	empty := tgbotapi.NewEditMessageReplyMarkup(int64(chat), int(id), tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, err := t.bot.Send(empty)
	if err != nil {
		return fmt.Errorf("removeMessageKeyboard: %w", err)
	}
	return nil
}

func (t *BotTransport) SendChatAction(ctx context.Context, chat ChatID, action ChatAction) error {
	_, err := t.bot.Request(tgbotapi.NewChatAction(int64(chat), string(action)))
	if err != nil {
		return fmt.Errorf("sendChatAction: %w", err)
	}
	return nil
}

func (t *BotTransport) SendPhoto(ctx context.Context, chat ChatID, filePath string) (MessageID, error) {
	msg := tgbotapi.NewPhoto(int64(chat), tgbotapi.FilePath(filePath))
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sendPhoto: %w", err)
	}
	return MessageID(sent.MessageID), nil
}

func (t *BotTransport) SendDocument(ctx context.Context, chat ChatID, filePath string) (MessageID, error) {
	msg := tgbotapi.NewDocument(int64(chat), tgbotapi.FilePath(filePath))
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sendDocument: %w", err)
	}
	return MessageID(sent.MessageID), nil
}

// DownloadFile resolves id's remote file and streams its bytes into
// destDir, named "<namePrefix>-<remote basename>" (or just namePrefix if
// Telegram reports no usable basename for this file). It returns the path
// actually written, since the basename is only known after resolving id.
func (t *BotTransport) DownloadFile(ctx context.Context, id FileID, destDir, namePrefix string) (string, error) {
	f, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: string(id)})
	if err != nil {
		return "", fmt.Errorf("getFile: %w", err)
	}

	name := namePrefix
	if base := filepath.Base(f.FilePath); base != "." && base != string(filepath.Separator) && base != "" {
		name += "-" + base
	}
	destPath := filepath.Join(destDir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Link(t.bot.Token), nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create dest file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("copy download: %w", err)
	}
	return destPath, nil
}

func (t *BotTransport) SetMyCommands(ctx context.Context, cmds []BotCommand) error {
	bcmds := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		bcmds = append(bcmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	_, err := t.bot.Request(tgbotapi.NewSetMyCommands(bcmds...))
	if err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	return nil
}

// AnswerCallbackQuery acknowledges a button tap so Telegram clears the
// client-side loading spinner on the tapped button.
func (t *BotTransport) AnswerCallbackQuery(ctx context.Context, queryID string) error {
	_, err := t.bot.Request(tgbotapi.NewCallback(queryID, ""))
	if err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}
