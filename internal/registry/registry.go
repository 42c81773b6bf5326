// Package registry owns the subscription set: validated creation,
// listing, and 1-based index addressing for chat commands.
package registry

import (
	"context"
	"fmt"

	"myrss_bot/internal/cron"
	"myrss_bot/internal/filter"
	"myrss_bot/internal/model"
	"myrss_bot/internal/storage"
)

// Defaults are the fallbacks applied when an add omits a field.
type Defaults struct {
	CronExpr    string
	FilterRegex string
	MaxItems    int
}

// Registry manages subscriptions on top of a Storage. Every mutation is
// write-through; a storage failure is reported to the caller instead of
// being swallowed.
type Registry struct {
	store    storage.Storage
	defaults Defaults
}

// New creates a Registry. defaults.CronExpr must itself be a valid cron
// expression so a subscription can never end up without a schedule.
func New(store storage.Storage, defaults Defaults) (*Registry, error) {
	if _, err := cron.Parse(defaults.CronExpr); err != nil {
		return nil, fmt.Errorf("default cron: %w", err)
	}
	if err := filter.Validate(defaults.FilterRegex); err != nil {
		return nil, fmt.Errorf("default filter: %w", err)
	}
	return &Registry{store: store, defaults: defaults}, nil
}

// Add creates a subscription, or overwrites the schedule and filter of an
// existing one with the same URL. The existing watermark is preserved on
// overwrite. On create, the entries currently in the feed become the
// initial watermark atomically with the insert, so the first scheduled
// run cannot flood the chat with backlog. Empty cronExpr or filterRegex
// fall back to the configured defaults. Invalid cron or regex is rejected
// here, before storage, so it never surfaces at fetch time. Reports
// whether a new record was created.
func (r *Registry) Add(ctx context.Context, chatID int64, url, title, cronExpr, filterRegex string, entries []model.Entry) (*model.Subscription, bool, error) {
	if cronExpr == "" {
		cronExpr = r.defaults.CronExpr
	}
	if _, err := cron.Parse(cronExpr); err != nil {
		return nil, false, err
	}

	if filterRegex == "" {
		filterRegex = r.defaults.FilterRegex
	}
	if err := filter.Validate(filterRegex); err != nil {
		return nil, false, err
	}

	sub := &model.Subscription{
		ChatID:      chatID,
		URL:         url,
		Title:       title,
		CronExpr:    cronExpr,
		FilterRegex: filterRegex,
		MaxItems:    r.defaults.MaxItems,
	}
	seed := make([]string, 0, len(entries))
	for _, e := range entries {
		seed = append(seed, e.GUID)
	}
	created, err := r.store.UpsertSubscription(ctx, sub, seed)
	if err != nil {
		return nil, false, fmt.Errorf("save subscription: %w", err)
	}
	return sub, created, nil
}

// List returns the chat's subscriptions in insertion order.
func (r *Registry) List(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	return r.store.ListByChat(ctx, chatID)
}

// Get returns the chat's subscription at the given 1-based position.
func (r *Registry) Get(ctx context.Context, chatID int64, index int) (*model.Subscription, error) {
	subs, err := r.store.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(subs) {
		return nil, fmt.Errorf("no subscription #%d (have %d)", index, len(subs))
	}
	sub := subs[index-1]
	return &sub, nil
}

// Remove deletes the chat's subscription at the given 1-based position
// and returns the removed record. Later entries renumber.
func (r *Registry) Remove(ctx context.Context, chatID int64, index int) (*model.Subscription, error) {
	sub, err := r.Get(ctx, chatID, index)
	if err != nil {
		return nil, err
	}
	if err := r.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("delete subscription: %w", err)
	}
	return sub, nil
}
