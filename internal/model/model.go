// Package model defines the domain types used across the application.
package model

import "time"

// Subscription represents one feed watched for a chat on a cron schedule.
type Subscription struct {
	ID          int64
	ChatID      int64
	URL         string
	Title       string
	CronExpr    string
	FilterRegex string
	MaxItems    int
	CreatedAt   time.Time
}

// Entry is one normalized feed item produced by a fetch.
// Entries are ephemeral; only their GUIDs survive into the watermark.
type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	PubDate     string
	ChanTitle   string
	// Enclosures are the item's enclosure URLs in feed order. Site rules
	// mine them for magnet or torrent links.
	Enclosures []string
	// Extra is a site-specific addendum (torrent or magnet link) filled
	// in by the render rule; empty for most feeds.
	Extra string
}
