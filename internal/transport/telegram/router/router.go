// Package router turns platform updates into command, callback and
// free-form message handler calls.
//
// Work runs on a small pool of workers. Updates are sharded by sender so one
// user's messages are handled in the order they arrived.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"postbot/internal/runtime/supervisor"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

const (
	defaultWorkers  = 4
	workerQueueSize = 64
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Timeout overrides the router default; negative disables it.
	Timeout time.Duration
	Handle  HandlerFunc
	// Hidden commands work but stay out of /help and the menu.
	Hidden bool
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	// ArgText is everything after the command word, untokenized.
	ArgText string
	Payload string
	ReqID   string
	IsOwner bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, msg tgui.Message) error {
	_, err := msg.Send(ctx, r.Adapter, r.Chat)
	return err
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	workers int

	mu        sync.RWMutex
	cmds      map[string]*Command
	ordered   []*Command
	callbacks map[string]CallbackRoute
	fallback  HandlerFunc
	owners    map[int64]struct{}
	timeout   time.Duration
	onError   func(ctx context.Context, req *Request, err error)

	queues []chan func()
}

type Option func(*Router)

func WithLogger(log logx.Logger) Option  { return func(r *Router) { r.log = log } }
func WithWorkers(n int) Option           { return func(r *Router) { r.workers = n } }
func WithTimeout(d time.Duration) Option { return func(r *Router) { r.timeout = d } }
func WithOwners(owners []int64) Option   { return func(r *Router) { r.SetOwners(owners) } }
func WithFallback(h HandlerFunc) Option  { return func(r *Router) { r.fallback = h } }
func WithErrorReply(fn func(ctx context.Context, req *Request, err error)) Option {
	return func(r *Router) { r.onError = fn }
}

func New(adapter kit.Adapter, opts ...Option) *Router {
	r := &Router{
		log:       logx.Nop(),
		adapter:   adapter,
		workers:   defaultWorkers,
		cmds:      map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		owners:    map[int64]struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	r.log = r.log.With(logx.String("comp", "telegram.router"))
	return r
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	m := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

// SetTimeout changes the default per-handler timeout; 0 disables it.
func (r *Router) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[id]
	return ok
}

// Register installs commands and callbacks, replacing previous ones.
// A help command is always added.
func (r *Router) Register(cmds []Command, cbs []CallbackRoute) {
	all := append([]Command(nil), cmds...)
	all = append(all, Command{
		Name:        "help",
		Description: "show available commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, tgui.Message{Text: r.HelpText(req.Args, req.IsOwner), Opt: &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}})
		},
	})

	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(all))
	for i := range all {
		c := &all[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		ordered = append(ordered, c)
	}
	for _, c := range ordered {
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if _, taken := byName[a]; a != "" && !taken {
				byName[a] = c
			}
		}
	}

	cbMap := map[string]CallbackRoute{}
	for _, cb := range cbs {
		if cb.Handle == nil || cb.Scope == "" || cb.Action == "" {
			continue
		}
		cbMap[cb.Scope+":"+cb.Action] = cb
	}

	r.mu.Lock()
	r.cmds = byName
	r.ordered = ordered
	r.callbacks = cbMap
	r.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, *c)
	}
	return out
}

// Run dispatches updates until ctx is done or updates is closed.
// Workers run under sup and are restarted if they die.
func (r *Router) Run(ctx context.Context, sup *supervisor.Supervisor, updates <-chan kit.Update) error {
	queues := make([]chan func(), r.workers)
	for i := range queues {
		queues[i] = make(chan func(), workerQueueSize)
	}
	r.mu.Lock()
	r.queues = queues
	r.mu.Unlock()

	for i, q := range queues {
		idx, q := i, q
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return r.work(c, idx, q)
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}
	r.log.Info("dispatcher started", logx.Int("workers", len(queues)))
	defer r.log.Info("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) work(ctx context.Context, idx int, q <-chan func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q:
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.log.Error("panic in worker", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

// enqueue places fn on the worker owning key. Without workers (tests,
// one-shot use) fn runs inline.
func (r *Router) enqueue(key int64, fn func()) bool {
	r.mu.RLock()
	queues := r.queues
	r.mu.RUnlock()
	if len(queues) == 0 {
		fn()
		return true
	}
	if key < 0 {
		key = -key
	}
	select {
	case queues[key%int64(len(queues))] <- fn:
		return true
	default:
		return false
	}
}

// Route handles a single update.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.routeCallback(ctx, up)
		}
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") || msg.HasAttachment {
		r.mu.RLock()
		fb := r.fallback
		r.mu.RUnlock()
		if fb == nil {
			return
		}
		req := r.newRequest(up, chat, msg.FromID, "message")
		r.dispatch(ctx, msg.FromID, req, fb, 0)
		return
	}

	word, rest := text[1:], ""
	if i := strings.IndexFunc(word, unicode.IsSpace); i >= 0 {
		word, rest = word[:i], word[i:]
	}
	// "/cmd@botname" addresses this bot explicitly in groups.
	word, _, _ = strings.Cut(word, "@")
	word = strings.ToLower(word)

	r.mu.RLock()
	cmd := r.cmds[word]
	r.mu.RUnlock()
	if cmd == nil {
		_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Send /help to see what I can do.", nil)
		return
	}

	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	if cmd.Access == AccessOwnerOnly && !req.IsOwner {
		_, _ = r.adapter.SendText(ctx, chat, "This command is only available to the bot owner.", nil)
		return
	}
	req.ArgText = strings.TrimSpace(rest)
	req.Args = tokenizeCommandLine(req.ArgText)
	r.dispatch(ctx, msg.FromID, req, cmd.Handle, cmd.Timeout)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	scope, action, payload, err := tgui.ParseData(cb.Data)
	if err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	r.mu.RLock()
	route, ok := r.callbacks[scope+":"+action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "This button is no longer active.")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+scope+":"+action)
	if route.Access == AccessOwnerOnly && !req.IsOwner {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	req.Payload = payload
	h := func(c context.Context, rq *Request) error {
		err := route.Handle(c, rq, payload)
		_ = r.adapter.AnswerCallback(c, cb.ID, "")
		return err
	}
	r.dispatch(ctx, cb.FromID, req, h, route.Timeout)
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		IsOwner: r.isOwner(from),
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) dispatch(ctx context.Context, key int64, req *Request, h HandlerFunc, timeout time.Duration) {
	r.mu.RLock()
	if timeout == 0 {
		timeout = r.timeout
	}
	onErr := r.onError
	r.mu.RUnlock()

	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	job := func() {
		if err := final(ctx, req); err != nil && onErr != nil {
			onErr(ctx, req, err)
		}
	}
	if !r.enqueue(key, job) {
		req.Logger.Warn("worker queue full; update dropped")
		if req.Update.Kind == kit.UpdateCallback {
			_ = r.adapter.AnswerCallback(ctx, req.Update.Callback.ID, "busy, try again")
			return
		}
		_, _ = r.adapter.SendText(ctx, req.Chat, "I'm busy right now, please try again in a moment.", nil)
	}
}
