// Package filter implements the title exclusion engine.
package filter

import (
	"fmt"
	"regexp"

	"myrss_bot/internal/model"
)

// Apply excludes entries whose title matches pattern (case-insensitive
// search). An empty pattern passes all entries through unchanged.
//
// Patterns are validated at subscription creation, so a compile failure
// here means storage corruption; the batch is returned unfiltered rather
// than dropped.
func Apply(entries []model.Entry, pattern string) []model.Entry {
	if pattern == "" {
		return entries
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return entries
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if re.MatchString(e.Title) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// Validate checks whether a pattern is a valid regular expression.
// Called before a filter is stored; invalid patterns never reach run time.
func Validate(pattern string) error {
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fmt.Errorf("invalid filter regex: %w", err)
	}
	return nil
}
