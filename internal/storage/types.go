package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// AllSites is the wildcard site name accepted by subscription operations.
// Subscribing to it delivers updates from every registered site.
const AllSites = "all"

var (
	// ErrUnknownDriver is returned when Config.Driver names no backend.
	ErrUnknownDriver = errors.New("storage: unknown driver")

	// ErrDriverDisabled is returned when the requested backend exists but
	// was compiled out of this binary.
	ErrDriverDisabled = errors.New("storage: driver disabled in this build")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("storage: backend closed")
)

// Config selects and tunes a backend.
type Config struct {
	// Driver is "file" or "sqlite". Empty means "file".
	Driver string `yaml:"driver" json:"driver"`

	// Path is the data directory for the file driver, or the database
	// file for the sqlite driver.
	Path string `yaml:"path" json:"path"`

	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// SubscriptionRecord is the persisted form of one subscriber.
type SubscriptionRecord struct {
	ID      string   `json:"id"`
	IsGroup bool     `json:"is_group"`
	Sites   []string `json:"sites"`
	Session string   `json:"session,omitempty"`
}

// DedupState maps site id -> content hash -> unix sent-at seconds.
type DedupState map[string]map[string]float64

// Backend is the raw persistence contract shared by all drivers.
// Callers hold their own in-memory state and use a backend only to load
// it at startup and flush it after mutations.
type Backend interface {
	LoadCache(ctx context.Context, site string) (json.RawMessage, bool, error)
	SaveCache(ctx context.Context, site string, data json.RawMessage) error

	LoadDedup(ctx context.Context) (DedupState, error)
	SaveDedup(ctx context.Context, state DedupState) error

	LoadSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)
	SaveSubscriptions(ctx context.Context, recs []SubscriptionRecord) error

	Close() error
}
