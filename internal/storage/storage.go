// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"myrss_bot/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Subscriptions are keyed by (chat, url); the seen-entry watermark is a
// bounded per-subscription set of GUIDs.
type Storage interface {
	// UpsertSubscription creates or updates the (chat, url) subscription.
	// On create, seed GUIDs become the initial watermark in the same
	// transaction; on update they are ignored and the existing watermark
	// is preserved.
	UpsertSubscription(ctx context.Context, sub *model.Subscription, seed []string) (created bool, err error)
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListByChat(ctx context.Context, chatID int64) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error

	IsSeen(ctx context.Context, subID int64, guid string) (bool, error)
	MarkSeen(ctx context.Context, subID int64, guids []string) error

	Close() error
}
