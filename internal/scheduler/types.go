package scheduler

import (
	"context"
	"time"

	"sitewatch/internal/storage"
)

// Config tunes the scheduler service.
type Config struct {
	// Enabled gates the whole service; a disabled scheduler accepts
	// registrations but never triggers checks.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Timezone for cron evaluation, IANA name. Empty means local time.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CheckTimeout bounds one CheckUpdates call.
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`
}

func (c Config) withDefaults() Config {
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 2 * time.Minute
	}
	return c
}

// SubscriberSource answers who should receive a site's updates. The
// scheduler consults it before running a check so sites nobody follows
// are not polled. It is only ever queried with ids of registered
// sites; the source itself does not validate site ids.
type SubscriberSource interface {
	Subscribers(site string) []storage.Subscriber
}

// Delivery hands a checked update off for fan-out.
type Delivery interface {
	Deliver(ctx context.Context, siteID, message string, subs []storage.Subscriber)
}
