package registry

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"myrss_bot/internal/model"
	"myrss_bot/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg, err := New(store, Defaults{CronExpr: "0 18 * * *", MaxItems: 3})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, store
}

func TestNewRejectsBadDefaults(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := New(store, Defaults{CronExpr: "not a cron"}); err == nil {
		t.Error("expected error for invalid default cron")
	}
	if _, err := New(store, Defaults{CronExpr: "0 18 * * *", FilterRegex: "(["}); err == nil {
		t.Error("expected error for invalid default filter")
	}
}

func TestAddAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	sub, created, err := reg.Add(ctx, 100, "https://example.com/rss", "Example", "", "", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created {
		t.Fatal("expected new subscription")
	}
	if diff := cmp.Diff("0 18 * * *", sub.CronExpr); diff != "" {
		t.Errorf("default cron not applied (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, sub.MaxItems); diff != "" {
		t.Errorf("default max items not applied (-want +got):\n%s", diff)
	}
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	if _, _, err := reg.Add(ctx, 100, "https://example.com/rss", "", "61 * * * *", "", nil); err == nil {
		t.Error("expected error for out-of-range cron minute")
	}
	if _, _, err := reg.Add(ctx, 100, "https://example.com/rss", "", "", "([", nil); err == nil {
		t.Error("expected error for invalid filter regex")
	}

	// Nothing was stored.
	subs, err := reg.List(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(0, len(subs)); diff != "" {
		t.Errorf("rejected adds must not be stored (-want +got):\n%s", diff)
	}
}

func TestReAddOverwritesRulesKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	entries := []model.Entry{{GUID: "guid-1"}, {GUID: "guid-2"}}
	sub, _, err := reg.Add(ctx, 100, "https://example.com/rss", "Example", "", "", entries)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	again, created, err := reg.Add(ctx, 100, "https://example.com/rss", "Example", "*/30 * * * *", `\[720p\]`, nil)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if created {
		t.Error("expected overwrite, not create")
	}
	if diff := cmp.Diff(sub.ID, again.ID); diff != "" {
		t.Errorf("record identity changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("*/30 * * * *", again.CronExpr); diff != "" {
		t.Errorf("cron not overwritten (-want +got):\n%s", diff)
	}

	for _, guid := range []string{"guid-1", "guid-2"} {
		seen, err := store.IsSeen(ctx, sub.ID, guid)
		if err != nil {
			t.Fatalf("is seen: %v", err)
		}
		if !seen {
			t.Errorf("watermark entry %s lost on re-add", guid)
		}
	}
}

func TestAddSeedsWatermarkOnCreate(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	entries := []model.Entry{{GUID: "old-1"}, {GUID: "old-2"}, {GUID: "old-3"}}
	sub, created, err := reg.Add(ctx, 100, "https://example.com/rss", "Example", "", "", entries)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created {
		t.Fatal("expected new subscription")
	}

	// The current feed content is seen from the moment the subscription
	// exists; a poll can never deliver it as backlog.
	for _, e := range entries {
		seen, err := store.IsSeen(ctx, sub.ID, e.GUID)
		if err != nil {
			t.Fatalf("is seen: %v", err)
		}
		if !seen {
			t.Errorf("entry %s not seeded at create", e.GUID)
		}
	}

	// An overwrite must not grow the watermark from its entry set.
	if _, _, err := reg.Add(ctx, 100, "https://example.com/rss", "Example", "", "", []model.Entry{{GUID: "new-1"}}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	seen, err := store.IsSeen(ctx, sub.ID, "new-1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if seen {
		t.Error("re-add must not seed new GUIDs into an existing watermark")
	}
}

func TestIndexAddressing(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	for _, url := range []string{
		"https://a.example.com/rss",
		"https://b.example.com/rss",
		"https://c.example.com/rss",
	} {
		if _, _, err := reg.Add(ctx, 100, url, "", "", "", nil); err != nil {
			t.Fatalf("add %s: %v", url, err)
		}
	}

	second, err := reg.Get(ctx, 100, 2)
	if err != nil {
		t.Fatalf("get #2: %v", err)
	}
	if diff := cmp.Diff("https://b.example.com/rss", second.URL); diff != "" {
		t.Errorf("index lookup mismatch (-want +got):\n%s", diff)
	}

	if _, err := reg.Get(ctx, 100, 0); err == nil {
		t.Error("expected error for index 0 (indexes are 1-based)")
	}
	if _, err := reg.Get(ctx, 100, 4); err == nil {
		t.Error("expected error for out-of-range index")
	}

	removed, err := reg.Remove(ctx, 100, 2)
	if err != nil {
		t.Fatalf("remove #2: %v", err)
	}
	if diff := cmp.Diff("https://b.example.com/rss", removed.URL); diff != "" {
		t.Errorf("removed wrong subscription (-want +got):\n%s", diff)
	}

	// Later entries renumber.
	second, err = reg.Get(ctx, 100, 2)
	if err != nil {
		t.Fatalf("get #2 after remove: %v", err)
	}
	if diff := cmp.Diff("https://c.example.com/rss", second.URL); diff != "" {
		t.Errorf("renumbering mismatch (-want +got):\n%s", diff)
	}
}
