// Package relay drives the Telegram long-poll loop: it classifies inbound
// updates into commands, model-selection callbacks, and free text, and
// relays free text (with the chat's bounded history) to the generation
// backend.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/agka1/agka-tg-bot/internal/gemini"
	"github.com/agka1/agka-tg-bot/internal/session"
	"github.com/agka1/agka-tg-bot/internal/telegramutil"
)

const parseModeMarkdownV2 = "MarkdownV2"

// Fixed user-visible texts. Canned fallback and error strings are sent with
// no parse mode; only model output goes through MarkdownV2 escaping.
const (
	welcomeText = "Hi! I'm an assistant powered by Google Gemini.\n\n" +
		"Use /reset to clear the conversation and /model to pick a model."
	resetDoneText    = "Conversation history cleared."
	thinkingText     = "⏳ Thinking..."
	cannotAnswerText = "I can't answer that. Try rephrasing your question."
	rateLimitedText  = "Too many requests! Please wait a minute."
	genericErrorText = "Something went wrong. Please try again later."
)

const (
	callbackSelectFlash = "select_flash"
	callbackSelectPro   = "select_pro"

	flashLabel = "⚡️ Flash"
	proLabel   = "💎 Pro"
)

// Backend produces a reply for the given model and conversation history.
type Backend interface {
	Generate(ctx context.Context, model string, history []session.Turn) gemini.Result
}

type command int

const (
	cmdNone command = iota
	cmdStart
	cmdReset
	cmdModel
)

func parseCommand(text string) command {
	word, _ := splitCommand(text)
	switch normalizeSlashCommand(word) {
	case "/start":
		return cmdStart
	case "/reset":
		return cmdReset
	case "/model":
		return cmdModel
	default:
		return cmdNone
	}
}

type callbackAction int

const (
	actionNone callbackAction = iota
	actionSelectFlash
	actionSelectPro
)

func parseCallbackAction(data string) callbackAction {
	switch strings.TrimSpace(data) {
	case callbackSelectFlash:
		return actionSelectFlash
	case callbackSelectPro:
		return actionSelectPro
	default:
		return actionNone
	}
}

type Options struct {
	BotToken    string
	BaseURL     string
	PollTimeout time.Duration
}

// Runtime owns the poll loop and the per-update handlers. Updates are
// processed sequentially in arrival order; the session store carries its own
// lock, so per-chat state stays consistent even if dispatch is ever
// parallelized.
type Runtime struct {
	api     *telegramAPI
	backend Backend
	store   *session.Store
	logger  *slog.Logger
	opts    Options
}

func New(backend Backend, store *session.Store, logger *slog.Logger, opts Options) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	return &Runtime{
		api:     newTelegramAPI(&http.Client{Timeout: 60 * time.Second}, opts.BaseURL, opts.BotToken),
		backend: backend,
		store:   store,
		logger:  logger,
		opts:    opts,
	}
}

// Run long-polls getUpdates until ctx is canceled. Per-update failures are
// contained: they are logged and the loop moves on.
func (r *Runtime) Run(ctx context.Context) error {
	me, err := r.api.getMe(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("telegram_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", r.opts.PollTimeout.String(),
	)

	if err := r.api.setMyCommands(ctx, []telegramBotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "reset", Description: "Clear the conversation history"},
		{Command: "model", Description: "Choose the Gemini model"},
	}); err != nil {
		r.logger.Warn("telegram_set_commands_error", "error", err.Error())
	}

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, nextOffset, err := r.api.getUpdates(ctx, offset, r.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isTelegramPollTimeoutError(err) {
				r.logger.Warn("telegram_get_updates_error", "error", err.Error())
			}
			time.Sleep(1 * time.Second)
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			r.handleUpdate(ctx, u)
		}
	}
}

func (r *Runtime) handleUpdate(ctx context.Context, u telegramUpdate) {
	if u.CallbackQuery != nil {
		r.handleCallback(ctx, u.CallbackQuery)
		return
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	switch parseCommand(text) {
	case cmdStart:
		r.sendPlain(ctx, chatID, msg.MessageID, welcomeText)
	case cmdReset:
		r.store.Reset(chatID)
		r.sendPlain(ctx, chatID, msg.MessageID, resetDoneText)
	case cmdModel:
		r.handleModelCommand(ctx, chatID)
	default:
		r.handleChat(ctx, chatID, msg.MessageID, text)
	}
}

func (r *Runtime) handleModelCommand(ctx context.Context, chatID int64) {
	current := r.store.Preference(chatID)
	prompt := "Current model: *" + capitalize(current) + "*.\n\nPick a new model:"

	_, err := r.api.sendMessage(ctx, telegramSendMessageRequest{
		ChatID:    chatID,
		Text:      telegramutil.EscapeMarkdownV2(prompt),
		ParseMode: parseModeMarkdownV2,
		ReplyMarkup: &telegramInlineKeyboardMarkup{
			InlineKeyboard: [][]telegramInlineKeyboardButton{{
				{Text: flashLabel + " (fast)", CallbackData: callbackSelectFlash},
				{Text: proLabel + " (powerful)", CallbackData: callbackSelectPro},
			}},
		},
	})
	if err != nil {
		r.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}

func (r *Runtime) handleCallback(ctx context.Context, cb *telegramCallbackQuery) {
	action := parseCallbackAction(cb.Data)
	if action == actionNone || cb.Message == nil || cb.Message.Chat == nil {
		// Unknown payloads still get acknowledged so the client's loading
		// indicator clears.
		if err := r.api.answerCallbackQuery(ctx, cb.ID, ""); err != nil {
			r.logger.Warn("telegram_answer_callback_error", "error", err.Error())
		}
		return
	}
	chatID := cb.Message.Chat.ID

	preference := session.PreferenceFlash
	label := flashLabel
	if action == actionSelectPro {
		preference = session.PreferencePro
		label = proLabel
	}
	r.store.SetPreference(chatID, preference)
	r.logger.Info("model_preference_set", "chat_id", chatID, "preference", preference)

	if err := r.api.answerCallbackQuery(ctx, cb.ID, "Model selected: "+label); err != nil {
		r.logger.Warn("telegram_answer_callback_error", "chat_id", chatID, "error", err.Error())
	}

	confirm := "Done! Now using model: *" + label + "*"
	r.editMarkdown(ctx, chatID, cb.Message.MessageID, telegramutil.EscapeMarkdownV2(confirm))
}

// handleChat is the reply pipeline: placeholder first, then the backend call
// with the full bounded history, then an in-place edit with the outcome.
func (r *Runtime) handleChat(ctx context.Context, chatID, messageID int64, text string) {
	taskID := uuid.NewString()
	r.logger.Info("telegram_task_received", "task_id", taskID, "chat_id", chatID, "text_len", len(text))

	placeholderID, err := r.api.sendMessage(ctx, telegramSendMessageRequest{
		ChatID:           chatID,
		Text:             thinkingText,
		ReplyToMessageID: messageID,
	})
	if err != nil {
		r.logger.Warn("telegram_send_error", "task_id", taskID, "chat_id", chatID, "error", err.Error())
		return
	}
	_ = r.api.sendChatAction(ctx, chatID, "typing")

	model := gemini.ModelFor(r.store.Preference(chatID))
	r.store.AppendTurn(chatID, session.RoleUser, text)

	res := r.backend.Generate(ctx, model, r.store.History(chatID))
	switch res.Kind {
	case gemini.KindText:
		r.store.AppendTurn(chatID, session.RoleModel, res.Text)
		rendered := telegramutil.TruncateMessage(telegramutil.EscapeMarkdownV2(res.Text))
		r.editMarkdown(ctx, chatID, placeholderID, rendered)
		r.logger.Info("telegram_task_done", "task_id", taskID, "chat_id", chatID, "model", model, "reply_len", len(res.Text))
	case gemini.KindEmpty:
		// A contentless reply must not pollute the context.
		r.editPlain(ctx, chatID, placeholderID, cannotAnswerText)
		r.logger.Info("gemini_empty_response", "task_id", taskID, "chat_id", chatID, "model", model)
	case gemini.KindRateLimited:
		r.editPlain(ctx, chatID, placeholderID, rateLimitedText)
		r.logger.Warn("gemini_rate_limited", "task_id", taskID, "chat_id", chatID, "model", model, "error", errText(res.Err))
	default:
		r.editPlain(ctx, chatID, placeholderID, genericErrorText)
		r.logger.Error("gemini_generate_error", "task_id", taskID, "chat_id", chatID, "model", model, "error", errText(res.Err))
	}
}

func (r *Runtime) sendPlain(ctx context.Context, chatID, replyTo int64, text string) {
	_, err := r.api.sendMessage(ctx, telegramSendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		r.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}

func (r *Runtime) editPlain(ctx context.Context, chatID, messageID int64, text string) {
	if err := r.api.editMessageText(ctx, chatID, messageID, text, ""); err != nil {
		r.logger.Warn("telegram_edit_error", "chat_id", chatID, "error", err.Error())
	}
}

// editMarkdown edits a message as MarkdownV2, falling back to plain text
// when Telegram rejects the entities.
func (r *Runtime) editMarkdown(ctx context.Context, chatID, messageID int64, text string) {
	err := r.api.editMessageText(ctx, chatID, messageID, text, parseModeMarkdownV2)
	if err == nil {
		return
	}
	if isTelegramMarkdownParseError(err) {
		if err2 := r.api.editMessageText(ctx, chatID, messageID, text, ""); err2 == nil {
			return
		}
	}
	r.logger.Warn("telegram_edit_error", "chat_id", chatID, "error", err.Error())
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	// Allow "/cmd@BotName" variants by stripping "@...".
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
