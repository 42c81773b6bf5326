// Package scheduler drives the poll pipeline: every minute it matches
// each subscription's cron schedule against the tick time and runs
// fetch → filter → dedup → render for the ones that fire.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"myrss_bot/internal/cron"
	"myrss_bot/internal/fetcher"
	"myrss_bot/internal/filter"
	"myrss_bot/internal/model"
	"myrss_bot/internal/render"
	"myrss_bot/internal/storage"
)

// maxConcurrent bounds how many subscriptions are processed in parallel
// within one tick.
const maxConcurrent = 8

// Sender is the interface for delivering rendered messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler ticks once per minute and polls due subscriptions.
type Scheduler struct {
	store      storage.Storage
	fetcher    *fetcher.Fetcher
	dispatcher *render.Dispatcher
	sender     Sender
	log        *slog.Logger
	tick       time.Duration

	schedMu   sync.Mutex
	schedules map[string]*cron.Schedule

	subMu    sync.Mutex
	subLocks map[int64]*sync.Mutex
}

// New creates a Scheduler with the default HTTP client.
func New(store storage.Storage, dispatcher *render.Dispatcher, sender Sender, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, fetcher.New(http.DefaultClient), dispatcher, sender, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store storage.Storage, f *fetcher.Fetcher, dispatcher *render.Dispatcher, sender Sender, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		fetcher:    f,
		dispatcher: dispatcher,
		sender:     sender,
		log:        log,
		tick:       1 * time.Minute,
		schedules:  make(map[string]*cron.Schedule),
		subLocks:   make(map[int64]*sync.Mutex),
	}
}

// SetTickInterval overrides the default 1-minute tick (testing only).
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the tick loop, blocking until ctx is cancelled. The first
// tick is aligned to the next tick-interval boundary so cron minutes are
// evaluated at minute edges.
func (s *Scheduler) Run(ctx context.Context) {
	first := time.Now().Truncate(s.tick).Add(s.tick)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Until(first)):
	}
	s.runTick(ctx, first)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runTick(ctx, now)
		}
	}
}

// runTick snapshots the subscription list and processes every due
// subscription concurrently. One subscription's failure never aborts the
// tick for its siblings.
func (s *Scheduler) runTick(ctx context.Context, now time.Time) {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		sched, err := s.schedule(sub.CronExpr)
		if err != nil {
			// Validated at add time; only corrupt storage gets here.
			s.log.Error("bad cron expression", "sub_id", sub.ID, "expr", sub.CronExpr, "error", err)
			continue
		}
		if !sched.Matches(now) {
			continue
		}
		g.Go(func() error {
			s.processSubscription(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()
}

// processSubscription runs the pipeline for one due subscription. The
// per-subscription lock serializes watermark updates against concurrent
// runs for the same subscription.
func (s *Scheduler) processSubscription(ctx context.Context, sub model.Subscription) {
	mu := s.subLock(sub.ID)
	mu.Lock()
	defer mu.Unlock()

	s.log.Debug("polling subscription", "sub_id", sub.ID, "url", sub.URL)

	feed, err := s.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		// Watermark untouched; the next cron match is the retry.
		s.log.Error("fetch feed", "sub_id", sub.ID, "url", sub.URL, "error", err)
		return
	}

	entries := filter.Apply(feed.Entries, sub.FilterRegex)

	var fresh []model.Entry
	for _, e := range entries {
		seen, err := s.store.IsSeen(ctx, sub.ID, e.GUID)
		if err != nil {
			s.log.Error("check seen", "sub_id", sub.ID, "guid", e.GUID, "error", err)
			continue
		}
		if seen {
			continue
		}
		fresh = append(fresh, e)
		if sub.MaxItems > 0 && len(fresh) >= sub.MaxItems {
			break
		}
	}
	if len(fresh) == 0 {
		return
	}

	guids := make([]string, 0, len(fresh))
	for _, e := range fresh {
		s.sender.SendMessage(sub.ChatID, s.dispatcher.Render(e, sub.URL))
		guids = append(guids, e.GUID)
	}

	// Recorded after delivery is initiated, before the next tick can
	// reprocess this subscription: at-least-once toward the sink.
	if err := s.store.MarkSeen(ctx, sub.ID, guids); err != nil {
		s.log.Error("mark seen", "sub_id", sub.ID, "error", err)
		return
	}

	s.log.Info("delivered entries", "sub_id", sub.ID, "url", sub.URL, "count", len(fresh))
}

// schedule returns the parsed cron schedule for expr, caching parses so
// the string is not re-parsed on every tick.
func (s *Scheduler) schedule(expr string) (*cron.Schedule, error) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if sched, ok := s.schedules[expr]; ok {
		return sched, nil
	}
	sched, err := cron.Parse(expr)
	if err != nil {
		return nil, err
	}
	s.schedules[expr] = sched
	return sched, nil
}

func (s *Scheduler) subLock(id int64) *sync.Mutex {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	mu, ok := s.subLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.subLocks[id] = mu
	}
	return mu
}
