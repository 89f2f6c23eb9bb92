package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	rtsup "mcwatch/internal/runtime/supervisor"
	kit "mcwatch/internal/transport"
	logx "mcwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// RenamePerMinute caps setChatTitle calls; Telegram rate-limits chat
	// title changes aggressively. 0 means a conservative default.
	RenamePerMinute int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop
	// watcher). Created on Start(), cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; logged periodically to avoid per-update spam.
	droppedUpdates uint64

	renameLimit *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	rpm := cfg.RenamePerMinute
	if rpm <= 0 {
		rpm = 10
	}

	a := &Adapter{
		cfg:         cfg,
		log:         log,
		bot:         b,
		renameLimit: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		}})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() blocks until Stop(). In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if sup == nil {
		return nil
	}
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

func clampText(s string) string {
	rs := []rune(s)
	if len(rs) <= textLimit {
		return s
	}
	return string(rs[:textLimit-1]) + "…"
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, clampText(text), &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	})
	if err != nil {
		return kit.MessageRef{}, mapErr(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, clampText(text), &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	})
	if err != nil {
		// Editing to identical content is not an error worth surfacing.
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
		return mapErr(err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if err := a.bot.Delete(m); err != nil {
		return mapErr(err)
	}
	return nil
}

func (a *Adapter) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	// setChatTitle is rate-limited by Telegram; block until a slot is free.
	if err := a.renameLimit.Wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetGroupTitle(&tele.Chat{ID: chatID}, title); err != nil {
		return mapErr(err)
	}
	return nil
}

func (a *Adapter) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return "", mapErr(err)
	}
	return chat.Title, nil
}

func (a *Adapter) ChatExists(ctx context.Context, chatID int64) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	_, err := a.bot.ChatByID(chatID)
	if err == nil {
		return true, nil
	}
	if errors.Is(mapErr(err), kit.ErrNotFound) {
		return false, nil
	}
	return false, mapErr(err)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// mapErr translates telebot API errors into transport sentinels. "Gone"
// conditions (deleted chat/message, kicked bot) map to ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return kit.ErrNotFound
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message can't be edited"),
		strings.Contains(msg, "bot was kicked"),
		strings.Contains(msg, "bot is not a member"):
		return kit.ErrNotFound
	}
	return err
}
