package router

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	kit "mcwatch/internal/transport"
	logx "mcwatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Route is the command name without the leading slash, e.g. "serverstatus".
	Route       string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Request carries one parsed command invocation.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends a plain-text reply into the originating chat.
func (r *Request) Reply(ctx context.Context, text string) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, nil)
}

type Manager struct {
	mu       sync.RWMutex
	commands map[string]Command
	owners   []int64

	log            logx.Logger
	adapter        kit.Adapter
	defaultTimeout time.Duration
}

func NewManager(log logx.Logger, adapter kit.Adapter, owners []int64) *Manager {
	return &Manager{
		commands:       map[string]Command{},
		owners:         append([]int64(nil), owners...),
		log:            log,
		adapter:        adapter,
		defaultTimeout: 30 * time.Second,
	}
}

func (m *Manager) Register(cmds ...Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cmds {
		route := strings.ToLower(strings.TrimSpace(c.Route))
		if route == "" || c.Handle == nil {
			continue
		}
		c.Route = route
		m.commands[route] = c
	}
}

func (m *Manager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = append([]int64(nil), owners...)
	m.mu.Unlock()
}

func (m *Manager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Commands returns the registered commands (for menus/help).
func (m *Manager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c)
	}
	return out
}

// DispatchLoop consumes updates until ctx is done. Handlers run inline:
// the tracker does its own timer-driven work, so command volume is low.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message == nil {
				continue
			}
			m.dispatch(ctx, up)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, up kit.Update) {
	route, args, ok := ParseCommand(up.Message.Text)
	if !ok {
		return
	}

	m.mu.RLock()
	cmd, found := m.commands[route]
	timeout := m.defaultTimeout
	m.mu.RUnlock()
	if !found {
		return
	}
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	if cmd.Access == AccessOwnerOnly && !m.isOwner(up.Message.FromID) {
		m.log.Debug("command denied (owner only)",
			logx.String("command", route), logx.Int64("from", up.Message.FromID))
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID},
		FromID:  up.Message.FromID,
		Command: route,
		Args:    args,
		Adapter: m.adapter,
		Logger:  m.log.With(logx.String("command", route)),
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("command handler panicked",
				logx.String("command", route), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	if err := cmd.Handle(cctx, req); err != nil {
		m.log.Warn("command failed",
			logx.String("command", route),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return
	}
	m.log.Debug("command handled",
		logx.String("command", route), logx.Duration("took", time.Since(start)))
}

// ParseCommand splits "/route@botname arg1 arg2" into its route and args.
// Returns ok=false for non-command text.
func ParseCommand(text string) (route string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	route = strings.TrimPrefix(fields[0], "/")
	// Strip the @botname suffix used in group chats.
	if i := strings.IndexByte(route, '@'); i >= 0 {
		route = route[:i]
	}
	route = strings.ToLower(route)
	if route == "" {
		return "", nil, false
	}
	return route, fields[1:], true
}
