package track

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mcwatch/internal/mcstatus"
	kit "mcwatch/internal/transport"
	"mcwatch/internal/transport/telegram/router"
	logx "mcwatch/pkg/logx"
)

type replyAdapter struct {
	kit.Adapter
	mu     sync.Mutex
	sent   []string
	nextID int
}

func (r *replyAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: r.nextID}, nil
}

func (r *replyAdapter) replies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func commandRequest(ad kit.Adapter, args []string, group bool) *router.Request {
	return &router.Request{
		Update:  kit.Update{Message: &kit.Message{ChatID: 100, FromID: 1, IsGroup: group}},
		Chat:    kit.ChatTarget{ChatID: 100},
		Args:    args,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func commandTracker(t *testing.T, src StatusSource, sinks Sinks) *Tracker {
	t.Helper()
	tr := New(Config{
		MessagePollInterval: time.Hour,
		ChannelPollInterval: time.Hour,
		GracePeriod:         time.Hour,
	}, newTestStore(t), src, sinks, nil, logx.Nop())
	t.Cleanup(tr.Close)
	return tr
}

func TestHandleServerStatus(t *testing.T) {
	t.Parallel()

	ad := &replyAdapter{}
	sinks := newFakeSinks()
	tr := commandTracker(t, &fakeSource{script: []fetchResult{{snap: online(5)}}}, sinks)

	if err := tr.handleServerStatus(context.Background(), commandRequest(ad, []string{"mc.example.com"}, false)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	replies := ad.replies()
	if len(replies) != 1 || replies[0] != "Der Server mc.example.com ist online mit 5 Spieler(n)." {
		t.Fatalf("replies = %v", replies)
	}
	jobs := tr.Jobs()
	if len(jobs) != 1 || jobs[0].Address != "mc.example.com" {
		t.Fatalf("jobs = %+v", jobs)
	}
	// The reply is seeded so the first identical tick stays suppressed.
	if got := sinks.CurrentText(NotificationLocation{ChatID: 100, MessageID: 1}); got == "" {
		t.Fatal("sent text not seeded")
	}
}

func TestHandleServerStatusFetchFailure(t *testing.T) {
	t.Parallel()

	ad := &replyAdapter{}
	tr := commandTracker(t, &fakeSource{script: []fetchResult{{err: mcstatus.ErrUnreachable}}}, newFakeSinks())

	if err := tr.handleServerStatus(context.Background(), commandRequest(ad, []string{"mc.example.com"}, false)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	replies := ad.replies()
	if len(replies) != 1 || replies[0] != "Konnte den Serverstatus nicht abrufen." {
		t.Fatalf("replies = %v", replies)
	}
	if len(tr.Jobs()) != 0 {
		t.Fatal("job created despite fetch failure")
	}
}

func TestHandleMOTD(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result fetchResult
		want   string
	}{
		{"online", fetchResult{snap: mcstatus.Snapshot{Online: true, MOTD: "Willkommen!"}}, "Server MOTD: Willkommen!"},
		{"offline", fetchResult{snap: offline()}, "Der Server ist offline."},
		{"error", fetchResult{err: mcstatus.ErrMalformed}, "Konnte das Server-MOTD nicht abrufen."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ad := &replyAdapter{}
			tr := commandTracker(t, &fakeSource{script: []fetchResult{tc.result}}, newFakeSinks())
			if err := tr.handleMOTD(context.Background(), commandRequest(ad, []string{"mc.example.com"}, false)); err != nil {
				t.Fatalf("handle: %v", err)
			}
			replies := ad.replies()
			if len(replies) != 1 || replies[0] != tc.want {
				t.Fatalf("replies = %v, want %q", replies, tc.want)
			}
		})
	}
}

func TestHandleChannelStatus(t *testing.T) {
	t.Parallel()

	ad := &replyAdapter{}
	sinks := newFakeSinks()
	tr := commandTracker(t, &fakeSource{script: []fetchResult{{snap: online(3)}}}, sinks)

	if err := tr.handleChannelStatus(context.Background(), commandRequest(ad, []string{"mc.example.com", "lobby"}, true)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	sinks.mu.Lock()
	label := sinks.labels[100]
	sinks.mu.Unlock()
	if label != "lobby-3-spielen" {
		t.Fatalf("label = %q", label)
	}

	replies := ad.replies()
	if len(replies) != 1 || replies[0] != "Der Kanalname wird nun entsprechend der Spielerzahl aktualisiert." {
		t.Fatalf("replies = %v", replies)
	}
	jobs := tr.Jobs()
	if len(jobs) != 1 || jobs[0].ChannelID != 100 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestHandleChannelStatusGroupOnly(t *testing.T) {
	t.Parallel()

	ad := &replyAdapter{}
	tr := commandTracker(t, &fakeSource{script: []fetchResult{{snap: online(3)}}}, newFakeSinks())

	if err := tr.handleChannelStatus(context.Background(), commandRequest(ad, []string{"mc.example.com"}, false)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	replies := ad.replies()
	if len(replies) != 1 || !strings.Contains(replies[0], "Gruppen") {
		t.Fatalf("replies = %v", replies)
	}
	if len(tr.Jobs()) != 0 {
		t.Fatal("job created outside a group")
	}
}
