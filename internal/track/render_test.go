package track

import (
	"testing"

	"mcwatch/internal/mcstatus"
)

func TestRenderStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		snap mcstatus.Snapshot
		want string
	}{
		{"online", mcstatus.Snapshot{Online: true, Players: 5}, "Der Server mc.example.com ist online mit 5 Spieler(n)."},
		{"online empty", mcstatus.Snapshot{Online: true}, "Der Server mc.example.com ist online mit 0 Spieler(n)."},
		{"offline", mcstatus.Snapshot{}, "Der Server mc.example.com ist offline."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderStatus("mc.example.com", tc.snap); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderLabel(t *testing.T) {
	t.Parallel()

	if got := RenderLabel("survival", mcstatus.Snapshot{Online: true, Players: 12}); got != "survival-12-spielen" {
		t.Fatalf("got %q", got)
	}
	if got := RenderLabel("survival", mcstatus.Snapshot{}); got != "offline" {
		t.Fatalf("got %q", got)
	}
}
