package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultLifetimeMS is the message-job time-to-live applied when a persisted
// record carries no endInterval (15 minutes, matching the original bot).
const DefaultLifetimeMS = 15 * 60 * 1000

// Kind is the persisted job category. The values double as the JSON keys of
// the durable document.
type Kind string

const (
	// KindMessage is a time-limited status message kept up to date by edits.
	KindMessage Kind = "serverStatuses"
	// KindChannel is an open-ended chat-title sync.
	KindChannel Kind = "channelStatuses"
)

// Kinds lists all valid categories in stable order.
func Kinds() []Kind { return []Kind{KindMessage, KindChannel} }

func ValidKind(k Kind) bool { return k == KindMessage || k == KindChannel }

// Record is one persisted job. Only the fields relevant to the record's
// category are populated; the JSON keys match the original status document
// so existing state files keep working.
type Record struct {
	ServerAddress string `json:"serverAddress"`
	ChannelID     int64  `json:"channelId"`

	// Message jobs only.
	MessageID   int   `json:"messageId,omitempty"`
	EndInterval int64 `json:"endInterval,omitempty"` // remaining lifetime in ms

	// Channel jobs only.
	Prefix            string `json:"prefix,omitempty"`
	AnnounceMessageID int    `json:"announceMessageId,omitempty"`
}

// Validate reports whether the record is usable for the given category.
func (r Record) Validate(k Kind) error {
	if strings.TrimSpace(r.ServerAddress) == "" {
		return errors.New("serverAddress is required")
	}
	if r.ChannelID == 0 {
		return errors.New("channelId is required")
	}
	switch k {
	case KindMessage:
		if r.MessageID == 0 {
			return errors.New("messageId is required for server status jobs")
		}
	case KindChannel:
		if strings.TrimSpace(r.Prefix) == "" {
			return errors.New("prefix is required for channel status jobs")
		}
	default:
		return fmt.Errorf("unknown job kind %q", string(k))
	}
	return nil
}

// Lifetime returns the remaining lifetime as a duration, applying the
// default when the persisted value is absent or non-positive.
func (r Record) Lifetime() time.Duration {
	ms := r.EndInterval
	if ms <= 0 {
		ms = DefaultLifetimeMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Jobs is the full (or partial) durable mapping.
type Jobs map[Kind]map[string]Record

// Store is the durable job registry.
//
// Every mutation is a serialized read-modify-write: implementations must
// guarantee that two interleaved SaveJobs calls cannot drop each other's
// entries, and that a failed write never leaves a corrupt document behind.
type Store interface {
	// EnsureExists initializes empty durable state on first run so
	// subsequent loads never fail.
	EnsureExists(ctx context.Context) error

	// SaveJobs merges partial into the durable mapping. Each (kind, id)
	// present in partial fully replaces the stored record; unrelated
	// entries are untouched. Idempotent.
	SaveJobs(ctx context.Context, partial Jobs) error

	// LoadJobs returns the full current state (empty, not nil, on first
	// run). Malformed entries are dropped, not propagated.
	LoadJobs(ctx context.Context) (Jobs, error)

	// RemoveJob deletes the record with the given id from every category
	// and drops categories that become empty. No-op if the id is absent.
	RemoveJob(ctx context.Context, id string) error

	// Compact reclaims space in the underlying medium (file rewrite or
	// sqlite vacuum). Best-effort housekeeping.
	Compact(ctx context.Context) error

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (or empty): JSON document backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
