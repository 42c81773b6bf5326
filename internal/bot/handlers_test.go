package bot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"myrss_bot/internal/config"
	"myrss_bot/internal/fetcher"
	"myrss_bot/internal/model"
	"myrss_bot/internal/registry"
	"myrss_bot/internal/render"
	"myrss_bot/internal/storage"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, msg.Text)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.sent))
	copy(cp, f.sent)
	return cp
}

func (f *fakeAPI) lastReply(t *testing.T) string {
	t.Helper()
	rs := f.replies()
	if len(rs) == 0 {
		t.Fatal("no replies sent")
	}
	return rs[len(rs)-1]
}

type mockHTTP struct {
	body       string
	statusCode int
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func newTestBot(t *testing.T, client fetcher.HTTPClient) (*Bot, *fakeAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg, err := registry.New(store, registry.Defaults{CronExpr: "0 18 * * *", MaxItems: 3})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	api := &fakeAPI{}
	b := &Bot{
		api:        api,
		reg:        reg,
		fetcher:    fetcher.New(client),
		dispatcher: render.NewDispatcher(200),
		cfg:        &config.Config{},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store
}

func TestHandleAddSubscribes(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	b.handleAdd(ctx, 100, "https://releases.example.com/rss 0.18.*.*.*")

	reply := api.lastReply(t)
	if !strings.HasPrefix(reply, "Subscribed!") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}
	if !strings.Contains(reply, "Anime Releases") {
		t.Errorf("reply should carry the channel title:\n%s", reply)
	}

	subs, err := store.ListByChat(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(subs)); diff != "" {
		t.Fatalf("subscription count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("0 18 * * *", subs[0].CronExpr); diff != "" {
		t.Errorf("dotted cron not converted (-want +got):\n%s", diff)
	}

	// Bootstrap: everything currently in the feed is already seen, so
	// the first scheduled run pushes no backlog.
	seen, err := store.IsSeen(ctx, subs[0].ID, "release-001")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Error("expected current entries to be marked seen on add")
	}
}

func TestHandleAddRejectsBadSchedule(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	b.handleAdd(ctx, 100, "https://releases.example.com/rss 0.25.*.*.*")

	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Invalid schedule:") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}
	subs, err := store.ListByChat(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(0, len(subs)); diff != "" {
		t.Errorf("rejected add must not be stored (-want +got):\n%s", diff)
	}
}

func TestHandleAddRejectsBadFilter(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	b.handleAdd(ctx, 100, "https://releases.example.com/rss 0.18.*.*.* ([")

	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Invalid filter:") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}
}

func TestHandleAddReportsFetchFailure(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, &mockHTTP{body: "not found", statusCode: 404})

	b.handleAdd(ctx, 100, "https://releases.example.com/rss")

	reply := api.lastReply(t)
	if !strings.HasPrefix(reply, "Failed to fetch feed:") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}
	if !strings.Contains(reply, "http_status") {
		t.Errorf("reply should name the failure kind:\n%s", reply)
	}
}

func TestHandleReAddUpdatesRules(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	b.handleAdd(ctx, 100, "https://releases.example.com/rss")
	b.handleAdd(ctx, 100, `https://releases.example.com/rss */30.*.*.*.* \[720p\]`)

	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Subscription rules updated!") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}

	subs, err := store.ListByChat(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(subs)); diff != "" {
		t.Fatalf("re-add created a duplicate (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("*/30 * * * *", subs[0].CronExpr); diff != "" {
		t.Errorf("cron not updated (-want +got):\n%s", diff)
	}
}

func TestHandleListAndRemove(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	b.handleList(ctx, 100)
	if reply := api.lastReply(t); !strings.Contains(reply, "no subscriptions") {
		t.Fatalf("unexpected empty-list reply:\n%s", reply)
	}

	b.handleAdd(ctx, 100, "https://releases.example.com/rss")
	b.handleList(ctx, 100)
	if reply := api.lastReply(t); !strings.Contains(reply, "1. Anime Releases") {
		t.Fatalf("unexpected list reply:\n%s", reply)
	}

	b.handleRemove(ctx, 100, "1")
	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Unsubscribed: Anime Releases") {
		t.Fatalf("unexpected remove reply:\n%s", reply)
	}

	b.handleRemove(ctx, 100, "1")
	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Error:") {
		t.Fatalf("expected error removing missing index:\n%s", reply)
	}
}

func TestHandleGetPreviewsWithoutMarkingSeen(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	// Stored directly so no add-time bootstrap runs: the watermark
	// starts empty and must stay empty after a preview.
	sub := &model.Subscription{
		ChatID:      100,
		URL:         "https://releases.example.com/rss",
		Title:       "Anime Releases",
		CronExpr:    "0 18 * * *",
		FilterRegex: `\[720p\]`,
		MaxItems:    3,
	}
	if _, err := store.UpsertSubscription(ctx, sub, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	b.handleGet(ctx, 100, "1")
	previews := api.replies()

	// MaxItems is 3 and the two 720p entries are filtered out.
	if diff := cmp.Diff(3, len(previews)); diff != "" {
		t.Fatalf("preview count (-want +got):\n%s", diff)
	}
	for _, p := range previews {
		if strings.Contains(p, "[720p]") {
			t.Errorf("filtered entry in preview:\n%s", p)
		}
	}

	seen, err := store.IsSeen(ctx, sub.ID, "release-001")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if seen {
		t.Error("preview must not advance the watermark")
	}
}

func TestHandleCommandRouting(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, &mockHTTP{body: loadFixture(t), statusCode: 200})

	msg := &tgbotapi.Message{
		Text:     "/bogus",
		Chat:     &tgbotapi.Chat{ID: 100},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	b.handleCommand(ctx, msg)
	if reply := api.lastReply(t); !strings.HasPrefix(reply, "Unknown command") {
		t.Fatalf("unexpected reply:\n%s", reply)
	}
}
