// Package track owns the job registry, the per-job polling and expiry state
// machine, and the startup recovery pass over persisted jobs.
package track

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mcwatch/internal/eventbus"
	"mcwatch/internal/mcstatus"
	"mcwatch/internal/storage"
	logx "mcwatch/pkg/logx"
)

// State is the lifecycle phase of one tracked job.
type State int

const (
	// StateActive polls the status source on a fixed period.
	StateActive State = iota
	// StateExpiring has shown the terminal text and awaits the grace timer.
	StateExpiring
	// StateGrace counts down to deletion of the notification.
	StateGrace
	// StateRemoved is terminal; late timer callbacks bail out on it.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpiring:
		return "expiring"
	case StateGrace:
		return "grace"
	default:
		return "removed"
	}
}

// StatusSource fetches the current status of one target.
type StatusSource interface {
	Fetch(ctx context.Context, address string) (mcstatus.Snapshot, error)
}

type Config struct {
	MessagePollInterval time.Duration // default 60s
	ChannelPollInterval time.Duration // default 5m
	DefaultLifetime     time.Duration // default 15m
	GracePeriod         time.Duration // default 60s
}

func (c Config) withDefaults() Config {
	if c.MessagePollInterval <= 0 {
		c.MessagePollInterval = time.Minute
	}
	if c.ChannelPollInterval <= 0 {
		c.ChannelPollInterval = 5 * time.Minute
	}
	if c.DefaultLifetime <= 0 {
		c.DefaultLifetime = 15 * time.Minute
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = time.Minute
	}
	return c
}

// tickTimeout bounds one poll cycle (fetch plus sink plus persist).
const tickTimeout = 30 * time.Second

// storeFailLimit is the consecutive-write-failure count after which
// Healthy reports false and the systemd watchdog stops being petted.
const storeFailLimit = 3

// job is one live tracked target. run serializes all timer callbacks and
// mutations for this job; the tracker map mutex only guards lookup.
type job struct {
	run sync.Mutex

	id    string
	kind  storage.Kind
	rec   storage.Record
	state State

	expiresAt time.Time // message jobs only

	pollTimer   *time.Timer
	expiryTimer *time.Timer
	graceTimer  *time.Timer
}

func (j *job) stopTimers() {
	for _, tm := range []*time.Timer{j.pollTimer, j.expiryTimer, j.graceTimer} {
		if tm != nil {
			tm.Stop()
		}
	}
	j.pollTimer, j.expiryTimer, j.graceTimer = nil, nil, nil
}

// Tracker runs the poll/expiry state machine over an explicit job table.
// Every timer is owned by exactly one table entry; cancellation goes through
// the table, so a removed job can never be resurrected by a late callback.
type Tracker struct {
	cfg   Config
	store storage.Store
	src   StatusSource
	sinks Sinks
	bus   eventbus.Bus
	log   logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job

	storeFails atomic.Int32
}

func New(cfg Config, store storage.Store, src StatusSource, sinks Sinks, bus eventbus.Bus, log logx.Logger) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		cfg:    cfg.withDefaults(),
		store:  store,
		src:    src,
		sinks:  sinks,
		bus:    bus,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*job{},
	}
}

// Close cancels in-flight ticks and stops every timer. Jobs stay persisted
// so the next start recovers them.
func (t *Tracker) Close() {
	t.cancel()
	t.mu.Lock()
	jobs := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.jobs = map[string]*job{}
	t.mu.Unlock()

	for _, j := range jobs {
		j.run.Lock()
		j.stopTimers()
		j.state = StateRemoved
		j.run.Unlock()
	}
}

// Healthy reports whether recent persistence writes are succeeding.
func (t *Tracker) Healthy() bool {
	return t.storeFails.Load() < storeFailLimit
}

// UpdateConfig swaps the timing config. Timers armed before the call keep
// their deadlines; every timer armed afterwards uses the new intervals.
func (t *Tracker) UpdateConfig(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg.withDefaults()
	t.mu.Unlock()
}

func (t *Tracker) config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// JobInfo is a read-only snapshot of one live job.
type JobInfo struct {
	ID        string
	Kind      storage.Kind
	Address   string
	ChannelID int64
	State     State
	ExpiresIn time.Duration // zero for channel jobs
}

// Jobs returns a snapshot of the live job table.
func (t *Tracker) Jobs() []JobInfo {
	t.mu.Lock()
	jobs := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.mu.Unlock()

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		j.run.Lock()
		info := JobInfo{
			ID:        j.id,
			Kind:      j.kind,
			Address:   j.rec.ServerAddress,
			ChannelID: j.rec.ChannelID,
			State:     j.state,
		}
		if j.kind == storage.KindMessage && !j.expiresAt.IsZero() {
			info.ExpiresIn = time.Until(j.expiresAt)
		}
		j.run.Unlock()
		out = append(out, info)
	}
	return out
}

// StartMessageJob persists and schedules a new time-limited status message.
// The notification must already exist; its location is tracked from now on.
func (t *Tracker) StartMessageJob(ctx context.Context, loc NotificationLocation, address string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = t.config().DefaultLifetime
	}
	id := uuid.NewString()
	rec := storage.Record{
		ServerAddress: address,
		ChannelID:     loc.ChatID,
		MessageID:     loc.MessageID,
		EndInterval:   lifetime.Milliseconds(),
	}
	if err := rec.Validate(storage.KindMessage); err != nil {
		return "", err
	}
	if err := t.store.SaveJobs(ctx, storage.Jobs{storage.KindMessage: {id: rec}}); err != nil {
		return "", fmt.Errorf("persist server status job: %w", err)
	}
	t.admit(id, storage.KindMessage, rec, lifetime)
	t.publish(eventbus.TypeJobStarted, id, storage.KindMessage, address)
	t.log.Info("tracking server status message",
		logx.String("job", id), logx.String("server", address),
		logx.Int64("chat", loc.ChatID), logx.Duration("lifetime", lifetime))
	return id, nil
}

// StartChannelJob persists and schedules a new channel title sync.
// announceMessageID, if non-zero, is the "now tracking" notice that gets
// deleted after the grace period.
func (t *Tracker) StartChannelJob(ctx context.Context, channelID int64, address, prefix string, announceMessageID int) (string, error) {
	id := uuid.NewString()
	rec := storage.Record{
		ServerAddress:     address,
		ChannelID:         channelID,
		Prefix:            prefix,
		AnnounceMessageID: announceMessageID,
	}
	if err := rec.Validate(storage.KindChannel); err != nil {
		return "", err
	}
	if err := t.store.SaveJobs(ctx, storage.Jobs{storage.KindChannel: {id: rec}}); err != nil {
		return "", fmt.Errorf("persist channel status job: %w", err)
	}
	t.admit(id, storage.KindChannel, rec, 0)
	if announceMessageID != 0 {
		t.scheduleAnnounceCleanup(id)
	}
	t.publish(eventbus.TypeJobStarted, id, storage.KindChannel, address)
	t.log.Info("tracking channel status",
		logx.String("job", id), logx.String("server", address),
		logx.Int64("chat", channelID), logx.String("prefix", prefix))
	return id, nil
}

// admit installs the job into the table and arms its timers. Message jobs
// get a poll timer plus a single expiry timer; channel jobs poll forever.
func (t *Tracker) admit(id string, kind storage.Kind, rec storage.Record, lifetime time.Duration) {
	j := &job{id: id, kind: kind, rec: rec, state: StateActive}
	cfg := t.config()

	t.mu.Lock()
	t.jobs[id] = j
	t.mu.Unlock()

	j.run.Lock()
	defer j.run.Unlock()
	switch kind {
	case storage.KindMessage:
		j.expiresAt = time.Now().Add(lifetime)
		j.pollTimer = time.AfterFunc(cfg.MessagePollInterval, func() { t.messageTick(id) })
		j.expiryTimer = time.AfterFunc(lifetime, func() { t.expire(id) })
	case storage.KindChannel:
		j.pollTimer = time.AfterFunc(cfg.ChannelPollInterval, func() { t.channelTick(id) })
	}
}

// withJob runs fn under the job's run lock if the job is live and in the
// expected state. Late timer callbacks for removed jobs fall through here.
func (t *Tracker) withJob(id string, want State, fn func(j *job)) {
	t.mu.Lock()
	j, ok := t.jobs[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	j.run.Lock()
	defer j.run.Unlock()
	if j.state != want {
		return
	}
	fn(j)
}

func (t *Tracker) messageTick(id string) {
	t.withJob(id, StateActive, func(j *job) {
		ctx, cancel := context.WithTimeout(t.ctx, tickTimeout)
		defer cancel()

		interval := t.config().MessagePollInterval
		loc := NotificationLocation{ChatID: j.rec.ChannelID, MessageID: j.rec.MessageID}
		snap, err := t.src.Fetch(ctx, j.rec.ServerAddress)
		if err != nil {
			// Transient fetch failure: show the inline error, keep the
			// timers running, persist nothing.
			t.log.Debug("status fetch failed", logx.String("job", id),
				logx.String("server", j.rec.ServerAddress), logx.Err(err))
			if uerr := t.sinks.Update(ctx, loc, textFetchFailed); uerr != nil {
				if errors.Is(uerr, ErrNotFound) {
					t.removeLocked(ctx, j, "notification gone")
					return
				}
				t.log.Warn("status message edit failed", logx.String("job", id), logx.Err(uerr))
			}
			t.rearmPoll(j, interval, func() { t.messageTick(id) })
			return
		}

		text := RenderStatus(j.rec.ServerAddress, snap)
		if text != t.sinks.CurrentText(loc) {
			if uerr := t.sinks.Update(ctx, loc, text); uerr != nil {
				if errors.Is(uerr, ErrNotFound) {
					t.removeLocked(ctx, j, "notification gone")
					return
				}
				t.log.Warn("status message edit failed", logx.String("job", id), logx.Err(uerr))
				t.rearmPoll(j, interval, func() { t.messageTick(id) })
				return
			}
			t.persistLocked(ctx, j)
			t.publish(eventbus.TypeJobUpdated, id, j.kind, j.rec.ServerAddress)
		}
		t.rearmPoll(j, interval, func() { t.messageTick(id) })
	})
}

func (t *Tracker) channelTick(id string) {
	t.withJob(id, StateActive, func(j *job) {
		ctx, cancel := context.WithTimeout(t.ctx, tickTimeout)
		defer cancel()

		rearm := func() {
			t.rearmPoll(j, t.config().ChannelPollInterval, func() { t.channelTick(id) })
		}

		snap, err := t.src.Fetch(ctx, j.rec.ServerAddress)
		if err != nil {
			// The channel keeps its last title until the next tick.
			t.log.Debug("status fetch failed", logx.String("job", id),
				logx.String("server", j.rec.ServerAddress), logx.Err(err))
			rearm()
			return
		}

		label := RenderLabel(j.rec.Prefix, snap)
		current, err := t.sinks.CurrentLabel(ctx, j.rec.ChannelID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				t.removeLocked(ctx, j, "channel gone")
				return
			}
			t.log.Warn("channel title lookup failed", logx.String("job", id), logx.Err(err))
			rearm()
			return
		}
		if current != label {
			if rerr := t.sinks.Rename(ctx, j.rec.ChannelID, label); rerr != nil {
				if errors.Is(rerr, ErrNotFound) {
					t.removeLocked(ctx, j, "channel gone")
					return
				}
				t.log.Warn("channel rename failed", logx.String("job", id), logx.Err(rerr))
				rearm()
				return
			}
			t.persistLocked(ctx, j)
			t.publish(eventbus.TypeJobUpdated, id, j.kind, j.rec.ServerAddress)
		}
		rearm()
	})
}

// expire moves a message job from Active to Expiring and on to Grace:
// the poll timer stops, the terminal text replaces the status, and the
// grace timer is armed for the final delete.
func (t *Tracker) expire(id string) {
	t.withJob(id, StateActive, func(j *job) {
		ctx, cancel := context.WithTimeout(t.ctx, tickTimeout)
		defer cancel()

		j.state = StateExpiring
		if j.pollTimer != nil {
			j.pollTimer.Stop()
			j.pollTimer = nil
		}

		loc := NotificationLocation{ChatID: j.rec.ChannelID, MessageID: j.rec.MessageID}
		if err := t.sinks.Update(ctx, loc, textExpired); err != nil {
			if errors.Is(err, ErrNotFound) {
				t.removeLocked(ctx, j, "notification gone at expiry")
				return
			}
			// Still enter the grace period so the artifact gets cleaned up.
			t.log.Warn("terminal edit failed", logx.String("job", id), logx.Err(err))
		}
		t.publish(eventbus.TypeJobExpired, id, j.kind, j.rec.ServerAddress)
		t.log.Info("job expired", logx.String("job", id), logx.String("server", j.rec.ServerAddress))

		j.state = StateGrace
		j.graceTimer = time.AfterFunc(t.config().GracePeriod, func() { t.graceDelete(id) })
	})
}

// graceDelete deletes the expired notification and purges the record.
// The store delete runs last so the record only disappears once the
// artifact is gone.
func (t *Tracker) graceDelete(id string) {
	t.withJob(id, StateGrace, func(j *job) {
		ctx, cancel := context.WithTimeout(t.ctx, tickTimeout)
		defer cancel()

		loc := NotificationLocation{ChatID: j.rec.ChannelID, MessageID: j.rec.MessageID}
		if err := t.sinks.Delete(ctx, loc); err != nil && !errors.Is(err, ErrNotFound) {
			t.log.Warn("notification delete failed", logx.String("job", id), logx.Err(err))
		}
		t.removeLocked(ctx, j, "expiry complete")
	})
}

// removeLocked tears one job down: timers stopped, table entry dropped,
// durable record purged. Caller holds j.run.
func (t *Tracker) removeLocked(ctx context.Context, j *job, reason string) {
	j.stopTimers()
	j.state = StateRemoved

	t.mu.Lock()
	delete(t.jobs, j.id)
	t.mu.Unlock()

	if err := t.store.RemoveJob(ctx, j.id); err != nil {
		t.storeFails.Add(1)
		t.log.Error("job record removal failed",
			logx.String("job", j.id), logx.String("kind", string(j.kind)), logx.Err(err))
	} else {
		t.storeFails.Store(0)
	}
	t.publish(eventbus.TypeJobRemoved, j.id, j.kind, j.rec.ServerAddress)
	t.log.Info("job removed", logx.String("job", j.id),
		logx.String("kind", string(j.kind)), logx.String("reason", reason))
}

// persistLocked merge-saves the job record, refreshing the remaining
// lifetime for message jobs so recovery resumes from the last persisted
// countdown. Caller holds j.run.
func (t *Tracker) persistLocked(ctx context.Context, j *job) {
	if j.kind == storage.KindMessage {
		remaining := time.Until(j.expiresAt).Milliseconds()
		if remaining < 1 {
			remaining = 1
		}
		j.rec.EndInterval = remaining
	}
	if err := t.store.SaveJobs(ctx, storage.Jobs{j.kind: {j.id: j.rec}}); err != nil {
		fails := t.storeFails.Add(1)
		t.log.Error("job persistence failed",
			logx.String("job", j.id), logx.String("kind", string(j.kind)),
			logx.Int("consecutiveFailures", int(fails)), logx.Err(err))
		return
	}
	t.storeFails.Store(0)
}

// rearmPoll arms the next single-shot poll timer. It runs after the tick's
// persistence step, so ticks for one job can never overlap. Caller holds
// j.run.
func (t *Tracker) rearmPoll(j *job, interval time.Duration, fn func()) {
	if t.ctx.Err() != nil {
		return
	}
	j.pollTimer = time.AfterFunc(interval, fn)
}

// scheduleAnnounceCleanup deletes the "now tracking" notice once the grace
// period passed and clears the persisted reference. Cosmetic only.
func (t *Tracker) scheduleAnnounceCleanup(id string) {
	time.AfterFunc(t.config().GracePeriod, func() {
		t.withJob(id, StateActive, func(j *job) {
			if j.rec.AnnounceMessageID == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(t.ctx, tickTimeout)
			defer cancel()

			loc := NotificationLocation{ChatID: j.rec.ChannelID, MessageID: j.rec.AnnounceMessageID}
			if err := t.sinks.Delete(ctx, loc); err != nil && !errors.Is(err, ErrNotFound) {
				t.log.Debug("announcement delete failed", logx.String("job", id), logx.Err(err))
				return
			}
			j.rec.AnnounceMessageID = 0
			t.persistLocked(ctx, j)
		})
	})
}

func (t *Tracker) publish(typ, id string, kind storage.Kind, address string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: map[string]any{
		"job":    id,
		"kind":   string(kind),
		"server": address,
	}})
}
