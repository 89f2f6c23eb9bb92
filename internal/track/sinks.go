package track

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kit "mcwatch/internal/transport"
)

// ErrNotFound means the external artifact (message or channel) is gone.
// It is authoritative: callers remove the job instead of retrying.
var ErrNotFound = errors.New("track: target not found")

// NotificationLocation identifies one editable status message.
type NotificationLocation struct {
	ChatID    int64
	MessageID int
}

func (l NotificationLocation) String() string {
	return fmt.Sprintf("%d/%d", l.ChatID, l.MessageID)
}

// NotificationSink mutates editable status messages.
type NotificationSink interface {
	Update(ctx context.Context, loc NotificationLocation, text string) error
	Delete(ctx context.Context, loc NotificationLocation) error
	// CurrentText returns the last value this process wrote to the
	// notification, or "" when unknown. Telegram does not let bots read a
	// message back, so the sink remembers what it sent.
	CurrentText(loc NotificationLocation) string
	// Seed primes CurrentText after the initial send, so the first poll
	// tick does not re-edit identical content.
	Seed(loc NotificationLocation, text string)
}

// LabelSink renames tracked channels.
type LabelSink interface {
	Rename(ctx context.Context, channelID int64, label string) error
	CurrentLabel(ctx context.Context, channelID int64) (string, error)
}

// Resolver answers "does this persisted target still exist" during recovery.
type Resolver interface {
	ResolveNotification(ctx context.Context, loc NotificationLocation) (bool, error)
	ResolveLabelTarget(ctx context.Context, channelID int64) (bool, error)
}

// Sinks bundles the three collaborator roles one adapter provides.
type Sinks interface {
	NotificationSink
	LabelSink
	Resolver
}

// adapterSinks implements Sinks on top of the transport adapter and caches
// the last text written per notification for change suppression.
type adapterSinks struct {
	adapter kit.Adapter

	mu   sync.Mutex
	text map[NotificationLocation]string
}

// NewSinks wraps a transport adapter as the tracker's sink set.
func NewSinks(adapter kit.Adapter) Sinks {
	return &adapterSinks{
		adapter: adapter,
		text:    map[NotificationLocation]string{},
	}
}

func (s *adapterSinks) Update(ctx context.Context, loc NotificationLocation, text string) error {
	ref := kit.MessageRef{ChatID: loc.ChatID, MessageID: loc.MessageID}
	if err := s.adapter.EditText(ctx, ref, text, nil); err != nil {
		if errors.Is(err, kit.ErrNotFound) {
			s.forget(loc)
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return err
	}
	s.mu.Lock()
	s.text[loc] = text
	s.mu.Unlock()
	return nil
}

func (s *adapterSinks) Delete(ctx context.Context, loc NotificationLocation) error {
	ref := kit.MessageRef{ChatID: loc.ChatID, MessageID: loc.MessageID}
	err := s.adapter.DeleteMessage(ctx, ref)
	s.forget(loc)
	if err != nil {
		if errors.Is(err, kit.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return err
	}
	return nil
}

func (s *adapterSinks) CurrentText(loc NotificationLocation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text[loc]
}

func (s *adapterSinks) Seed(loc NotificationLocation, text string) {
	s.mu.Lock()
	s.text[loc] = text
	s.mu.Unlock()
}

func (s *adapterSinks) forget(loc NotificationLocation) {
	s.mu.Lock()
	delete(s.text, loc)
	s.mu.Unlock()
}

func (s *adapterSinks) Rename(ctx context.Context, channelID int64, label string) error {
	if err := s.adapter.SetChatTitle(ctx, channelID, label); err != nil {
		if errors.Is(err, kit.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return err
	}
	return nil
}

func (s *adapterSinks) CurrentLabel(ctx context.Context, channelID int64) (string, error) {
	title, err := s.adapter.ChatTitle(ctx, channelID)
	if err != nil {
		if errors.Is(err, kit.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return "", err
	}
	return title, nil
}

func (s *adapterSinks) ResolveNotification(ctx context.Context, loc NotificationLocation) (bool, error) {
	// Telegram offers no "does message X exist" call; chat reachability is
	// the strongest startup check available. A deleted message surfaces as
	// ErrNotFound on the first edit and removes the job then.
	return s.adapter.ChatExists(ctx, loc.ChatID)
}

func (s *adapterSinks) ResolveLabelTarget(ctx context.Context, channelID int64) (bool, error) {
	return s.adapter.ChatExists(ctx, channelID)
}
