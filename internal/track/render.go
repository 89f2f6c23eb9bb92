package track

import (
	"fmt"

	"mcwatch/internal/mcstatus"
)

// User-facing strings are German, matching the bot's audience.
const (
	textFetchFailed = "Fehler beim Abrufen des Serverstatus."
	textExpired     = "Der Befehl ist abgelaufen."
)

// RenderStatus formats the status message shown for a tracked server.
func RenderStatus(address string, snap mcstatus.Snapshot) string {
	if snap.Online {
		return fmt.Sprintf("Der Server %s ist online mit %d Spieler(n).", address, snap.Players)
	}
	return fmt.Sprintf("Der Server %s ist offline.", address)
}

// RenderLabel composes the channel title from the configured prefix and the
// current player count, e.g. "survival-5-spielen". Offline servers get the
// plain "offline" title regardless of prefix.
func RenderLabel(prefix string, snap mcstatus.Snapshot) string {
	if snap.Online {
		return fmt.Sprintf("%s-%d-spielen", prefix, snap.Players)
	}
	return "offline"
}
