// Package site defines the contract a watched site implements and the
// registry the scheduler pulls sites from.
package site

import (
	"context"
	"fmt"
)

// Site is one watched source of updates. Implementations live under
// internal/site/<name> and are registered at startup.
//
// CheckUpdates performs one poll and returns the notification messages
// produced by it, in the order they should be delivered. A nil error
// with no messages means the check succeeded and found nothing new.
// Plugins own their own diff state, typically via storage.CacheStore.
type Site interface {
	// ID is the stable machine name, used as storage key and in logs.
	ID() string

	// DisplayName is what subscribers type in commands.
	DisplayName() string

	// Description is a one-line summary for the site listing.
	Description() string

	// Schedule is either "interval:<seconds>" or a 5-field cron
	// expression. An unparseable value leaves the site registered but
	// never triggered.
	Schedule() string

	CheckUpdates(ctx context.Context) ([]string, error)
}

// RegistrationError reports why a site was rejected by the registry.
type RegistrationError struct {
	SiteID string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("site %q rejected: %s", e.SiteID, e.Reason)
}
