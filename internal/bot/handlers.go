package bot

import (
	"context"
	"fmt"

	"myrss_bot/internal/cron"
	"myrss_bot/internal/filter"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to MyRSS Bot!

Subscribe to RSS/Atom feeds and get new entries on a cron schedule.

Quick start:
1. /add <url> — subscribe with the default schedule
2. /add <url> 0.18.*.*.* — every day at 18:00
3. /list — see your subscriptions

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/add <url> [cron] [filter] — subscribe, or update an existing subscription's rules
/list — show all subscriptions
/remove <n> — unsubscribe by list number
/get <n> — preview the latest entries without marking them read

Cron uses dot-separated fields: min.hour.day.month.weekday
  0.18.*.*.*    every day at 18:00
  */30.*.*.*.*  every 30 minutes
Filter is a regex; entries whose title matches are skipped.`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseAddCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	cronExpr := ""
	if parsed.Cron != "" {
		cronExpr, err = cron.ParseDotted(parsed.Cron)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid schedule: %v", err))
			return
		}
	}

	if err := filter.Validate(parsed.Filter); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
		return
	}

	// Fetch up front: validates the URL points at a parseable feed,
	// yields the channel title, and gives the bootstrap its entry set.
	feed, err := b.fetcher.Fetch(ctx, parsed.URL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}

	// New subscriptions start with everything currently in the feed
	// marked seen, so the first scheduled run pushes no backlog. The
	// seeding happens inside the insert transaction.
	sub, created, err := b.reg.Add(ctx, chatID, parsed.URL, feed.Title, cronExpr, parsed.Filter, feed.Entries)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save subscription: %v", err))
		return
	}

	b.reply(chatID, FormatSubscriptionSaved(sub, created))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	subs, err := b.reg.List(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSubscriptionList(subs))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	idx, err := ParseIndexArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <n> — see /list for numbers")
		return
	}

	sub, err := b.reg.Remove(ctx, chatID, idx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	name := sub.Title
	if name == "" {
		name = sub.URL
	}
	b.reply(chatID, fmt.Sprintf("Unsubscribed: %s", name))
}

// handleGet previews a subscription's latest entries. It runs the same
// fetch → filter → render pipeline as the scheduler but never touches
// the watermark, so a preview cannot suppress a future delivery.
func (b *Bot) handleGet(ctx context.Context, chatID int64, args string) {
	idx, err := ParseIndexArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /get <n> — see /list for numbers")
		return
	}

	sub, err := b.reg.Get(ctx, chatID, idx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	feed, err := b.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch: %v", err))
		return
	}

	entries := filter.Apply(feed.Entries, sub.FilterRegex)
	if sub.MaxItems > 0 && len(entries) > sub.MaxItems {
		entries = entries[:sub.MaxItems]
	}
	if len(entries) == 0 {
		b.reply(chatID, "No entries.")
		return
	}

	for _, e := range entries {
		b.reply(chatID, b.dispatcher.Render(e, sub.URL))
	}
}
