package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
	"github.com/web3-frozen/wallet-telemetry/internal/monitor"
)

const telegramAPI = "https://api.telegram.org/bot"

// Button labels of the persistent reply keyboard.
const (
	ButtonBTC     = "BTC"
	ButtonUSD     = "USD"
	ButtonBalance = "Balance"
	ButtonMonthly = "Monthly stats"
)

const refusalText = "⛔ Sorry, you do not have access to this bot."

// Commands is what the bot can ask the monitor to do.
type Commands interface {
	Start(ctx context.Context, chatID int64) error
	Check(ctx context.Context, chatID int64) error
	MonthlyStats(ctx context.Context, chatID int64) error
	CryptoRate(ctx context.Context, chatID int64, symbol string) error
	FiatRate(ctx context.Context, chatID int64) error
}

// Options configures a Bot.
type Options struct {
	Token          string
	AllowedUserIDs []int64
	// Symbol labels the tracked-asset rate button, e.g. "TRX".
	Symbol string
	// Workers bounds concurrently handled updates.
	Workers int
}

type Bot struct {
	token   string
	baseURL string
	symbol  string
	allowed map[int64]struct{}
	logger  *slog.Logger
	client  *http.Client
	offset  int64

	commands Commands
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewBot(opts Options, logger *slog.Logger) *Bot {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Symbol == "" {
		opts.Symbol = "TRX"
	}
	allowed := make(map[int64]struct{}, len(opts.AllowedUserIDs))
	for _, id := range opts.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Bot{
		token:   opts.Token,
		baseURL: telegramAPI,
		symbol:  opts.Symbol,
		allowed: allowed,
		logger:  logger,
		// Must outlive the 30s long poll.
		client: &http.Client{Timeout: 60 * time.Second},
		sem:    make(chan struct{}, opts.Workers),
	}
}

// SetCommands attaches the command handler. Must be called before Run.
func (b *Bot) SetCommands(c Commands) { b.commands = c }

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboard struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
}

// keyboard is the persistent reply keyboard, two buttons per row.
func (b *Bot) keyboard() replyKeyboard {
	labels := []string{ButtonBTC, ButtonUSD, b.symbol, ButtonBalance, ButtonMonthly}
	var rows [][]keyboardButton
	for i := 0; i < len(labels); i += 2 {
		row := []keyboardButton{{Text: labels[i]}}
		if i+1 < len(labels) {
			row = append(row, keyboardButton{Text: labels[i+1]})
		}
		rows = append(rows, row)
	}
	return replyKeyboard{Keyboard: rows, ResizeKeyboard: true}
}

// Deliver sends msg with the reply keyboard. It satisfies monitor.DeliverFunc.
func (b *Bot) Deliver(ctx context.Context, chatID int64, msg monitor.Message) error {
	parseMode := ""
	if msg.Markdown {
		parseMode = "MarkdownV2"
	}
	return b.SendMessage(ctx, chatID, msg.Text, parseMode)
}

// SendMessage sends a text message to a Telegram chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := map[string]interface{}{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": b.keyboard(),
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	return b.call(ctx, "sendMessage", payload)
}

// DeleteMessage removes a message from a chat.
func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return b.call(ctx, "deleteMessage", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	})
}

func (b *Bot) reply(ctx context.Context, chatID, messageID int64, text string) error {
	return b.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
		"reply_parameters": map[string]interface{}{
			"message_id": messageID,
		},
	})
}

func (b *Bot) call(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+b.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Run starts the long-polling loop for incoming Telegram messages and
// returns after ctx is done and in-flight handlers have finished.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started", "allowed_users", len(b.allowed))
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.poll(ctx)
		}
	}
}

type message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Text string `json:"text"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=30", b.baseURL, b.token, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("poll updates", "error", err)
		b.backoff(ctx)
		return
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		b.logger.Error("decode updates", "error", err)
		b.backoff(ctx)
		return
	}
	if !result.OK {
		b.logger.Error("poll updates rejected", "status", resp.StatusCode)
		b.backoff(ctx)
		return
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil {
			continue
		}
		b.dispatch(ctx, u.Message)
	}
}

func (b *Bot) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

// dispatch hands m to the worker pool, blocking while all workers are busy.
func (b *Bot) dispatch(ctx context.Context, m *message) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	b.wg.Add(1)
	go func() {
		defer func() {
			<-b.sem
			b.wg.Done()
		}()
		b.handle(ctx, m)
	}()
}

func (b *Bot) authorized(m *message) bool {
	if m.From == nil {
		return false
	}
	_, ok := b.allowed[m.From.ID]
	return ok
}

// command strips a "@botname" suffix: "/start@WalletBot" -> "/start".
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if fields := strings.Fields(text); len(fields) > 0 {
		text = fields[0]
	}
	if at := strings.IndexByte(text, '@'); at > 0 {
		text = text[:at]
	}
	return text
}

func (b *Bot) handle(ctx context.Context, m *message) {
	chatID := m.Chat.ID
	text := command(m.Text)

	if !b.authorized(m) {
		if text == "/start" {
			if err := b.reply(ctx, chatID, m.MessageID, refusalText); err != nil {
				b.logger.Error("send refusal", "chat_id", chatID, "error", err)
			}
		}
		var from int64
		if m.From != nil {
			from = m.From.ID
		}
		b.logger.Warn("unauthorized message ignored", "chat_id", chatID, "user_id", from)
		return
	}

	var err error
	switch text {
	case "/start":
		err = b.commands.Start(ctx, chatID)
	case "/check":
		err = b.commands.Check(ctx, chatID)
	default:
		if strings.HasPrefix(text, "/") {
			return
		}
		// Button presses are removed so the chat only holds bot output.
		if derr := b.DeleteMessage(ctx, chatID, m.MessageID); derr != nil {
			b.logger.Error("delete message", "chat_id", chatID, "error", derr)
		}
		switch text {
		case ButtonBTC:
			err = b.commands.CryptoRate(ctx, chatID, "BTC")
		case b.symbol:
			err = b.commands.CryptoRate(ctx, chatID, b.symbol)
		case ButtonUSD:
			err = b.commands.FiatRate(ctx, chatID)
		case ButtonBalance:
			err = b.commands.Check(ctx, chatID)
		case ButtonMonthly:
			err = b.commands.MonthlyStats(ctx, chatID)
		default:
			return
		}
	}
	metrics.CommandsTotal.WithLabelValues(text).Inc()
	if err != nil {
		b.logger.Error("command failed", "command", text, "chat_id", chatID, "error", err)
	}
}
