package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3-frozen/wallet-telemetry/internal/monitor"
)

type apiCall struct {
	method  string
	payload map[string]any
}

// fakeAPI records Bot API calls and serves queued getUpdates batches.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	updates [][]update
	status  int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	defer f.mu.Unlock()

	if method == "getUpdates" {
		var batch []update
		if len(f.updates) > 0 {
			batch, f.updates = f.updates[0], f.updates[1:]
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": batch})
		return
	}

	var payload map[string]any
	json.NewDecoder(r.Body).Decode(&payload)
	f.calls = append(f.calls, apiCall{method, payload})
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Bad Request: chat not found"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type fakeCommands struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeCommands) record(s string) error {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
	return nil
}

func (c *fakeCommands) Start(context.Context, int64) error        { return c.record("start") }
func (c *fakeCommands) Check(context.Context, int64) error        { return c.record("check") }
func (c *fakeCommands) MonthlyStats(context.Context, int64) error { return c.record("monthly") }
func (c *fakeCommands) FiatRate(context.Context, int64) error     { return c.record("fiat") }
func (c *fakeCommands) CryptoRate(_ context.Context, _ int64, symbol string) error {
	return c.record("rate:" + symbol)
}

func (c *fakeCommands) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *fakeCommands) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b := NewBot(Options{Token: "TOKEN", AllowedUserIDs: []int64{1001}, Symbol: "TRX"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.baseURL = srv.URL + "/bot"
	cmds := &fakeCommands{}
	b.SetCommands(cmds)
	return b, api, cmds
}

func msg(from int64, messageID int64, text string) *message {
	m := &message{MessageID: messageID, Text: text}
	m.Chat.ID = 555
	m.From = &struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}{ID: from}
	return m
}

func TestDeliver(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.Deliver(ctx, 555, monitor.Message{Text: "plain"}); err != nil {
		t.Fatalf("Deliver(plain) error: %v", err)
	}
	if err := b.Deliver(ctx, 555, monitor.Message{Text: `*8\.50*`, Markdown: true}); err != nil {
		t.Fatalf("Deliver(markdown) error: %v", err)
	}

	calls := api.recorded()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].method != "sendMessage" {
		t.Errorf("method = %q, want sendMessage", calls[0].method)
	}
	if _, ok := calls[0].payload["parse_mode"]; ok {
		t.Error("plain message should not set parse_mode")
	}
	if got := calls[1].payload["parse_mode"]; got != "MarkdownV2" {
		t.Errorf("parse_mode = %v, want MarkdownV2", got)
	}
	if got := calls[0].payload["chat_id"]; got != float64(555) {
		t.Errorf("chat_id = %v, want 555", got)
	}

	markup, ok := calls[0].payload["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup missing: %v", calls[0].payload)
	}
	rows := markup["keyboard"].([]any)
	var labels []string
	for _, row := range rows {
		for _, btn := range row.([]any) {
			labels = append(labels, btn.(map[string]any)["text"].(string))
		}
	}
	want := "BTC,USD,TRX,Balance,Monthly stats"
	if got := strings.Join(labels, ","); got != want {
		t.Errorf("keyboard = %s, want %s", got, want)
	}
	if len(rows) != 3 {
		t.Errorf("keyboard rows = %d, want 3", len(rows))
	}
	if markup["resize_keyboard"] != true {
		t.Error("keyboard should be resizable")
	}
}

func TestSendMessageAPIError(t *testing.T) {
	b, api, _ := newTestBot(t)
	api.status = http.StatusBadRequest

	err := b.SendMessage(context.Background(), 1, "hi", "")
	if err == nil {
		t.Fatal("SendMessage expected error, got nil")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error = %v, want telegram description", err)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/start", "/start"},
		{"  /check  ", "/check"},
		{"/start@WalletBot", "/start"},
		{"/start payload", "/start"},
		{"Balance", "Balance"},
		{"Monthly stats", "Monthly stats"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := command(tt.input); got != tt.want {
			t.Errorf("command(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHandleRouting(t *testing.T) {
	tests := []struct {
		text    string
		want    string
		deletes bool
	}{
		{"/start", "start", false},
		{"/start@WalletBot", "start", false},
		{"/check", "check", false},
		{"BTC", "rate:BTC", true},
		{"TRX", "rate:TRX", true},
		{"USD", "fiat", true},
		{"Balance", "check", true},
		{"Monthly stats", "monthly", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, api, cmds := newTestBot(t)
			b.handle(context.Background(), msg(1001, 77, tt.text))

			got := cmds.recorded()
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("commands = %v, want [%s]", got, tt.want)
			}
			calls := api.recorded()
			deleted := len(calls) == 1 && calls[0].method == "deleteMessage"
			if deleted != tt.deletes {
				t.Errorf("deleted = %v, want %v (calls %v)", deleted, tt.deletes, calls)
			}
			if deleted && calls[0].payload["message_id"] != float64(77) {
				t.Errorf("deleted message_id = %v, want 77", calls[0].payload["message_id"])
			}
		})
	}
}

func TestHandleUnknownText(t *testing.T) {
	b, api, cmds := newTestBot(t)
	b.handle(context.Background(), msg(1001, 5, "hello"))
	b.handle(context.Background(), msg(1001, 6, "/unknown"))

	if got := cmds.recorded(); len(got) != 0 {
		t.Errorf("commands = %v, want none", got)
	}
	// Free text is deleted like a button press; unknown commands are left.
	calls := api.recorded()
	if len(calls) != 1 || calls[0].method != "deleteMessage" {
		t.Errorf("calls = %v, want one deleteMessage", calls)
	}
}

func TestHandleUnauthorized(t *testing.T) {
	b, api, cmds := newTestBot(t)
	ctx := context.Background()

	b.handle(ctx, msg(2002, 10, "/start"))
	b.handle(ctx, msg(2002, 11, "/check"))
	b.handle(ctx, msg(2002, 12, "Balance"))
	anon := &message{MessageID: 13, Text: "/check"}
	b.handle(ctx, anon)

	if got := cmds.recorded(); len(got) != 0 {
		t.Errorf("commands = %v, want none for unauthorized users", got)
	}
	calls := api.recorded()
	if len(calls) != 1 {
		t.Fatalf("calls = %v, want only the /start refusal", calls)
	}
	if calls[0].payload["text"] != refusalText {
		t.Errorf("text = %v, want refusal", calls[0].payload["text"])
	}
	params, _ := calls[0].payload["reply_parameters"].(map[string]any)
	if params["message_id"] != float64(10) {
		t.Errorf("reply_parameters = %v, want message_id 10", params)
	}
}

func TestRunDispatchesUpdates(t *testing.T) {
	b, api, cmds := newTestBot(t)
	api.updates = [][]update{{
		{UpdateID: 1, Message: msg(1001, 1, "/check")},
		{UpdateID: 2},
		{UpdateID: 3, Message: msg(1001, 2, "Monthly stats")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(cmds.recorded()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("commands = %v, want 2", cmds.recorded())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if b.offset != 4 {
		t.Errorf("offset = %d, want 4", b.offset)
	}
}
