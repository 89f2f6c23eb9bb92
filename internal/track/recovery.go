package track

import (
	"context"
	"fmt"

	"mcwatch/internal/storage"
	logx "mcwatch/pkg/logx"
)

// Recover reconstructs live jobs from the persisted registry. Every record
// is either resumed with its remaining lifetime or purged; nothing is left
// half-configured.
func (t *Tracker) Recover(ctx context.Context) error {
	if err := t.store.EnsureExists(ctx); err != nil {
		return fmt.Errorf("initialize job store: %w", err)
	}
	jobs, err := t.store.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("load job store: %w", err)
	}

	var resumed, purged int
	for id, rec := range jobs[storage.KindMessage] {
		loc := NotificationLocation{ChatID: rec.ChannelID, MessageID: rec.MessageID}
		ok, rerr := t.sinks.ResolveNotification(ctx, loc)
		if rerr != nil {
			// Resolution errors are transient (network, rate limit); the
			// job is kept and a truly dead target is caught on first edit.
			t.log.Warn("notification resolution failed, keeping job",
				logx.String("job", id), logx.Err(rerr))
			ok = true
		}
		if !ok {
			t.purge(ctx, id, storage.KindMessage, rec)
			purged++
			continue
		}
		// Expiry resumes from the persisted countdown, not from the
		// original creation time. The poll timer restarts from a full
		// fresh period.
		t.admit(id, storage.KindMessage, rec, rec.Lifetime())
		t.log.Info("resumed server status job",
			logx.String("job", id), logx.String("server", rec.ServerAddress),
			logx.Duration("remaining", rec.Lifetime()))
		resumed++
	}

	for id, rec := range jobs[storage.KindChannel] {
		ok, rerr := t.sinks.ResolveLabelTarget(ctx, rec.ChannelID)
		if rerr != nil {
			t.log.Warn("channel resolution failed, keeping job",
				logx.String("job", id), logx.Err(rerr))
			ok = true
		}
		if !ok {
			t.purge(ctx, id, storage.KindChannel, rec)
			purged++
			continue
		}
		t.admit(id, storage.KindChannel, rec, 0)
		if rec.AnnounceMessageID != 0 {
			t.scheduleAnnounceCleanup(id)
		}
		t.log.Info("resumed channel status job",
			logx.String("job", id), logx.String("server", rec.ServerAddress),
			logx.String("prefix", rec.Prefix))
		resumed++
	}

	t.log.Info("recovery complete", logx.Int("resumed", resumed), logx.Int("purged", purged))
	return nil
}

func (t *Tracker) purge(ctx context.Context, id string, kind storage.Kind, rec storage.Record) {
	if err := t.store.RemoveJob(ctx, id); err != nil {
		t.log.Error("stale job removal failed",
			logx.String("job", id), logx.String("kind", string(kind)), logx.Err(err))
		return
	}
	t.log.Info("purged stale job", logx.String("job", id),
		logx.String("kind", string(kind)), logx.String("server", rec.ServerAddress))
}
