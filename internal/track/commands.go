package track

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mcwatch/internal/storage"
	"mcwatch/internal/transport/telegram/router"
	logx "mcwatch/pkg/logx"
)

const (
	textStatusFetchFailed  = "Konnte den Serverstatus nicht abrufen."
	textMOTDFetchFailed    = "Konnte das Server-MOTD nicht abrufen."
	textPlayersFetchFailed = "Konnte die Spieleranzahl nicht abrufen."
	textChannelAnnounce    = "Der Kanalname wird nun entsprechend der Spielerzahl aktualisiert."
	textGroupOnly          = "Dieser Befehl funktioniert nur in Gruppen."
)

// RegisterCommands wires the chat commands to the tracker.
func RegisterCommands(m *router.Manager, t *Tracker) {
	m.Register(
		router.Command{
			Route:       "serverstatus",
			Description: "Zeigt den Serverstatus an und hält ihn aktuell",
			Usage:       "/serverstatus <adresse>",
			Handle:      t.handleServerStatus,
		},
		router.Command{
			Route:       "motd",
			Description: "Zeigt das MOTD eines Servers an",
			Usage:       "/motd <adresse>",
			Handle:      t.handleMOTD,
		},
		router.Command{
			Route:       "channelstatus",
			Description: "Aktualisiert den Kanalnamen nach Spielerzahl",
			Usage:       "/channelstatus <adresse> [prefix]",
			Handle:      t.handleChannelStatus,
		},
		router.Command{
			Route:       "tracking",
			Description: "Listet aktive Überwachungen auf",
			Usage:       "/tracking",
			Access:      router.AccessOwnerOnly,
			Handle:      t.handleTracking,
		},
	)
}

// handleServerStatus replies with the current status and starts a message
// job that keeps the reply up to date until it expires.
func (t *Tracker) handleServerStatus(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		_, err := req.Reply(ctx, "Benutzung: /serverstatus <adresse>")
		return err
	}
	address := req.Args[0]

	snap, err := t.src.Fetch(ctx, address)
	if err != nil {
		req.Logger.Debug("status fetch failed", logx.String("server", address), logx.Err(err))
		_, rerr := req.Reply(ctx, textStatusFetchFailed)
		return rerr
	}

	text := RenderStatus(address, snap)
	ref, err := req.Reply(ctx, text)
	if err != nil {
		return fmt.Errorf("send status message: %w", err)
	}

	loc := NotificationLocation{ChatID: ref.ChatID, MessageID: ref.MessageID}
	t.sinks.Seed(loc, text)
	if _, err := t.StartMessageJob(ctx, loc, address, 0); err != nil {
		return err
	}
	return nil
}

// handleMOTD is a one-shot lookup, no job is created.
func (t *Tracker) handleMOTD(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		_, err := req.Reply(ctx, "Benutzung: /motd <adresse>")
		return err
	}
	address := req.Args[0]

	snap, err := t.src.Fetch(ctx, address)
	if err != nil {
		req.Logger.Debug("motd fetch failed", logx.String("server", address), logx.Err(err))
		_, rerr := req.Reply(ctx, textMOTDFetchFailed)
		return rerr
	}
	if !snap.Online {
		_, err = req.Reply(ctx, "Der Server ist offline.")
		return err
	}
	_, err = req.Reply(ctx, "Server MOTD: "+snap.MOTD)
	return err
}

// handleChannelStatus renames the group after the current player count and
// starts an open-ended channel job.
func (t *Tracker) handleChannelStatus(ctx context.Context, req *router.Request) error {
	if !req.Update.Message.IsGroup {
		_, err := req.Reply(ctx, textGroupOnly)
		return err
	}
	if len(req.Args) < 1 {
		_, err := req.Reply(ctx, "Benutzung: /channelstatus <adresse> [prefix]")
		return err
	}
	address := req.Args[0]
	prefix := "online-"
	if len(req.Args) > 1 {
		prefix = req.Args[1]
	}

	snap, err := t.src.Fetch(ctx, address)
	if err != nil {
		req.Logger.Debug("status fetch failed", logx.String("server", address), logx.Err(err))
		_, rerr := req.Reply(ctx, textPlayersFetchFailed)
		return rerr
	}

	// Best-effort initial rename; the first poll tick retries on failure.
	if rerr := t.sinks.Rename(ctx, req.Chat.ChatID, RenderLabel(prefix, snap)); rerr != nil {
		req.Logger.Warn("initial channel rename failed",
			logx.Int64("chat", req.Chat.ChatID), logx.Err(rerr))
	}

	announceID := 0
	if ref, aerr := req.Reply(ctx, textChannelAnnounce); aerr == nil {
		announceID = ref.MessageID
	} else {
		req.Logger.Warn("announcement send failed", logx.Err(aerr))
	}

	if _, err := t.StartChannelJob(ctx, req.Chat.ChatID, address, prefix, announceID); err != nil {
		return err
	}
	return nil
}

// handleTracking lists the live job table, owner only.
func (t *Tracker) handleTracking(ctx context.Context, req *router.Request) error {
	jobs := t.Jobs()
	if len(jobs) == 0 {
		_, err := req.Reply(ctx, "Keine aktiven Überwachungen.")
		return err
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Address < jobs[k].Address })

	var b strings.Builder
	b.WriteString("Aktive Überwachungen:\n")
	for _, j := range jobs {
		switch j.Kind {
		case storage.KindMessage:
			fmt.Fprintf(&b, "• %s (Nachricht, %s, läuft ab in %s)\n",
				j.Address, j.State, j.ExpiresIn.Round(time.Second))
		default:
			fmt.Fprintf(&b, "• %s (Kanal %d, %s)\n", j.Address, j.ChannelID, j.State)
		}
	}
	_, err := req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return err
}
