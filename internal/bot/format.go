package bot

import (
	"fmt"
	"strings"

	"myrss_bot/internal/model"
)

// FormatSubscriptionList formats a chat's subscriptions for display,
// numbered with the 1-based indexes that /remove and /get accept.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "You have no subscriptions yet. Use /add <url> to add one."
	}

	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for i, sub := range subs {
		name := sub.Title
		if name == "" {
			name = sub.URL
		}
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n   schedule: %s", i+1, name, sub.URL, sub.CronExpr)
		if sub.FilterRegex != "" {
			fmt.Fprintf(&b, "  |  filter: %s", sub.FilterRegex)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSubscriptionSaved formats the /add confirmation.
func FormatSubscriptionSaved(sub *model.Subscription, created bool) string {
	verb := "Subscribed"
	if !created {
		verb = "Subscription rules updated"
	}
	name := sub.Title
	if name == "" {
		name = sub.URL
	}
	filterLabel := sub.FilterRegex
	if filterLabel == "" {
		filterLabel = "none"
	}
	return fmt.Sprintf("%s!\nChannel: %s\nSchedule: %s\nFilter: %s", verb, name, sub.CronExpr, filterLabel)
}
