package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "mcwatch/pkg/logx"
)

func notifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify ready sent")
	}
}

func notifyStopping(log logx.Logger) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// watchdogLoop pets the systemd watchdog while the tracker's persistence
// writes are healthy. A store that keeps failing stops the petting, so
// systemd restarts the unit instead of letting it run in a broken state.
func (a *App) watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog detection failed", logx.Err(err))
		return
	}
	if interval == 0 {
		return // not running under a watchdog
	}

	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	a.log.Info("systemd watchdog active", logx.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !a.tracker.Healthy() {
				a.log.Error("skipping watchdog notify, job persistence is failing")
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				a.log.Warn("sd_notify watchdog failed", logx.Err(err))
			}
		}
	}
}
