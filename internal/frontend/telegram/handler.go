package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

const (
	unauthorizedMsg = "Sorry, you are not authorized to use this bot."
	unknownMsg      = "Unknown command. Send /help for the list."
	helpMsg         = "Commands:\n" +
		"/torrents [backend] - list torrents\n" +
		"/health - probe every backend\n" +
		"/pause BACKEND HASH... - stop torrents\n" +
		"/resume BACKEND HASH... - start torrents\n" +
		"/recheck BACKEND HASH... - verify torrent data"

	maxCallbackData = 64 // Bot API limit on callback_data bytes
	maxButtons      = 20 // inline buttons per backend message
	maxButtonLabel  = 30 // max characters in inline keyboard button label
)

// hashAction is a backend operation over a set of torrents.
type hashAction func(*torrent.Backend, context.Context, []string) error

// commandActions maps hash commands to backend operations.
var commandActions = map[string]hashAction{
	"pause":   (*torrent.Backend).StopTorrents,
	"resume":  (*torrent.Backend).StartTorrents,
	"recheck": (*torrent.Backend).CheckTorrents,
}

// callbackActions maps inline button actions to backend operations and the
// answer shown on success.
var callbackActions = map[string]struct {
	run  hashAction
	done string
}{
	"start": {(*torrent.Backend).StartTorrents, "Started"},
	"stop":  {(*torrent.Backend).StopTorrents, "Stopped"},
}

// handleMessage processes an incoming text message.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	b.logger.Debug("received message",
		slog.Int64("user_id", userID),
	)

	if !b.access.isAllowed(userID) {
		b.sendText(chatID, unauthorizedMsg)
		return
	}

	name, args := parseCommand(msg.Text)
	switch name {
	case "":
		return
	case "start", "help":
		b.sendText(chatID, helpMsg)
	case "torrents":
		b.listTorrents(ctx, chatID, args)
	case "health":
		b.sendMarkdown(chatID, formatHealth(b.checker.CheckAll(ctx)), nil)
	default:
		action, ok := commandActions[name]
		if !ok {
			b.sendText(chatID, unknownMsg)
			return
		}
		b.runCommand(ctx, chatID, name, action, args)
	}
}

// parseCommand splits "/cmd@bot arg1 arg2" into "cmd" and its arguments.
// Text that is not a command yields an empty name.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// listTorrents sends one message per backend, each with start/stop buttons.
func (b *Bot) listTorrents(ctx context.Context, chatID int64, args []string) {
	var snaps []torrent.Snapshot
	if len(args) > 0 {
		backend, err := b.registry.Get(args[0])
		if err != nil {
			b.sendText(chatID, err.Error())
			return
		}
		snaps = []torrent.Snapshot{torrent.Poll(ctx, backend)}
	} else {
		snaps = b.registry.ListAll(ctx)
	}

	if len(snaps) == 0 {
		b.sendText(chatID, "No backends configured.")
		return
	}
	for _, s := range snaps {
		b.sendMarkdown(chatID, formatSnapshot(s), buildTorrentKeyboard(s))
	}
}

// runCommand executes a hash command like "/pause seedbox HASH...".
func (b *Bot) runCommand(ctx context.Context, chatID int64, name string, action hashAction, args []string) {
	if len(args) < 2 {
		b.sendText(chatID, fmt.Sprintf("Usage: /%s BACKEND HASH...", name))
		return
	}
	backend, err := b.registry.Get(args[0])
	if err != nil {
		b.sendText(chatID, err.Error())
		return
	}
	if err := action(backend, ctx, args[1:]); err != nil {
		b.logger.Error("telegram command failed",
			slog.String("command", name),
			slog.String("backend", args[0]),
			slog.String("error", err.Error()),
		)
		b.sendText(chatID, err.Error())
		return
	}
	b.sendText(chatID, fmt.Sprintf("Done: %s %d torrent(s) on %s.", name, len(args)-1, args[0]))
}

// handleCallback processes inline keyboard callback queries of the form
// "action:backend:hash".
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	userID := cq.From.ID

	b.logger.Debug("received callback",
		slog.Int64("user_id", userID),
		slog.String("data", cq.Data),
	)

	if !b.access.isAllowed(userID) {
		b.answerCallback(cq.ID, unauthorizedMsg)
		return
	}

	parts := strings.SplitN(cq.Data, ":", 3)
	if len(parts) != 3 {
		b.answerCallback(cq.ID, "")
		return
	}
	action, ok := callbackActions[parts[0]]
	if !ok {
		b.answerCallback(cq.ID, "")
		return
	}

	backend, err := b.registry.Get(parts[1])
	if err == nil {
		err = action.run(backend, ctx, []string{parts[2]})
	}
	if err != nil {
		b.logger.Error("telegram callback failed",
			slog.String("data", cq.Data),
			slog.String("error", err.Error()),
		)
		b.answerCallback(cq.ID, "Failed: "+err.Error())
		return
	}
	b.answerCallback(cq.ID, action.done)
}

// answerCallback acknowledges a callback query, optionally with a toast.
func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn("failed to answer callback", slog.String("error", err.Error()))
	}
}

// sendText sends a plain text message (no parse mode).
func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// sendMarkdown sends a MarkdownV2 message with an optional inline keyboard.
func (b *Bot) sendMarkdown(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send markdown message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// buildTorrentKeyboard offers a start button for stopped or paused torrents
// and a stop button for the rest. Returns nil when there is nothing to offer.
func buildTorrentKeyboard(s torrent.Snapshot) *tgbotapi.InlineKeyboardMarkup {
	if s.Err != nil {
		return nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range s.Torrents {
		if len(rows) == maxButtons {
			break
		}
		action, icon := "stop", "⏸"
		if t.Status.Has(core.TagStopped) || t.Status.Has(core.TagPaused) {
			action, icon = "start", "▶"
		}
		data := action + ":" + s.Backend + ":" + t.Hash
		if len(data) > maxCallbackData {
			continue
		}
		btn := tgbotapi.NewInlineKeyboardButtonData(icon+" "+truncate(t.Name, maxButtonLabel), data)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
