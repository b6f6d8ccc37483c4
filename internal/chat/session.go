// Package chat owns conversation sessions: the Idle/Ready/AwaitingReply state
// machine, the choice between the hosted model and the FAQ resolver, and the
// dispatch of navigation actions attached to replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/config"
	"github.com/kpanalytix/kpa-assistant/internal/faq"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
	"github.com/kpanalytix/kpa-assistant/internal/store"
)

const (
	DefaultLocalDelay         = 500 * time.Millisecond
	DefaultMaxContextMessages = 20
)

var (
	ErrBusy       = errors.New("a reply is still pending")
	ErrNotOpen    = errors.New("session has not been opened")
	ErrEmptyInput = errors.New("message is empty")
)

type State int

const (
	StateIdle State = iota
	StateReady
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateAwaitingReply:
		return "awaiting_reply"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures sessions. Remote is required in remote mode.
type Options struct {
	Mode       config.Mode
	Lang       internal.Lang
	Local      *faq.Resolver
	Remote     *RemoteResolver
	Translator i18n.Translator

	MaxContextMessages int
	LocalDelay         time.Duration
	RateLimit          rate.Limit
	RateBurst          int

	Logger *zap.Logger
}

func (o Options) validate() error {
	if o.Local == nil {
		return errors.New("chat: local resolver is required")
	}
	if o.Translator == nil {
		return errors.New("chat: translator is required")
	}
	switch o.Mode {
	case config.ModeLocal:
	case config.ModeRemote:
		if o.Remote == nil {
			return errors.New("chat: remote mode needs a remote resolver")
		}
	default:
		return fmt.Errorf("chat: unsupported mode %q", o.Mode)
	}
	return nil
}

// Session is one conversation. At most one reply is resolved at a time;
// a submission while a reply is pending fails with ErrBusy.
type Session struct {
	id         string
	mode       config.Mode
	local      *faq.Resolver
	remote     *RemoteResolver
	translator i18n.Translator
	localDelay time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger

	history *store.History
	context *store.ContextBuffer

	mu         sync.Mutex
	state      State
	open       bool
	lang       internal.Lang
	lastActive time.Time
}

func NewSession(id string, opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.MaxContextMessages <= 0 {
		opts.MaxContextMessages = DefaultMaxContextMessages
	}
	if opts.Lang == "" {
		opts.Lang = internal.LangEN
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit, burst := opts.RateLimit, opts.RateBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Session{
		id:         id,
		mode:       opts.Mode,
		local:      opts.Local,
		remote:     opts.Remote,
		translator: opts.Translator,
		localDelay: opts.LocalDelay,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     opts.Logger.With(zap.String("session", id)),
		history:    store.NewHistory(),
		context:    store.NewContextBuffer(opts.MaxContextMessages),
		state:      StateIdle,
		lang:       opts.Lang,
		lastActive: time.Now(),
	}, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Mode() config.Mode { return s.mode }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) Lang() internal.Lang {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// SetLang changes the language used for the next greeting and replies.
func (s *Session) SetLang(lang internal.Lang) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lang = lang
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Messages returns the display history.
func (s *Session) Messages() []internal.Message { return s.history.All() }

// ContextMessages returns the model-facing context.
func (s *Session) ContextMessages() []internal.Message { return s.context.Messages() }

// Allow reports whether the session's submission rate allows another message.
func (s *Session) Allow() bool { return s.limiter.Allow() }

// Open shows the widget. The first open greets the user and moves the
// session from Idle to Ready; later opens keep the history as it is.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	if s.state != StateIdle {
		s.open = true
		return nil
	}
	greeting, err := s.translator.Translate("greeting", s.lang)
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	store.SeedAssistantHello(s.history, greeting)
	s.state = StateReady
	s.open = true
	return nil
}

// Close hides the widget. History and state are kept.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// Reset forgets both histories and returns the session to Idle.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingReply {
		return ErrBusy
	}
	s.history.Reset()
	s.context.Reset()
	s.state = StateIdle
	s.open = false
	return nil
}

// Suggestions returns the starter prompts while the conversation holds no
// more than the greeting, and nil afterwards.
func (s *Session) Suggestions() []string {
	s.mu.Lock()
	lang, state := s.lang, s.state
	s.mu.Unlock()
	if state != StateReady || s.history.Len() > 1 {
		return nil
	}
	out, err := i18n.Suggestions(s.translator, lang)
	if err != nil {
		s.logger.Warn("suggestions unavailable", zap.Error(err))
		return nil
	}
	return out
}

// Submit records the user's text, resolves a reply and records it. Remote
// failures degrade to the FAQ resolver, so the only errors are the
// rejections ErrEmptyInput, ErrNotOpen and ErrBusy, in which case nothing
// is recorded.
func (s *Session) Submit(ctx context.Context, text string) (internal.BotReply, error) {
	if strings.TrimSpace(text) == "" {
		return internal.BotReply{}, ErrEmptyInput
	}

	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return internal.BotReply{}, ErrNotOpen
	case StateAwaitingReply:
		s.mu.Unlock()
		return internal.BotReply{}, ErrBusy
	}
	s.history.Append(internal.Message{Role: internal.RoleUser, Content: text, CreatedAt: time.Now()})
	s.state = StateAwaitingReply
	s.lastActive = time.Now()
	lang := s.lang
	s.mu.Unlock()

	reply := s.resolve(ctx, text, lang)

	s.mu.Lock()
	s.history.Append(internal.Message{
		Role:      internal.RoleAssistant,
		Content:   reply.Text,
		Action:    reply.Action,
		CreatedAt: time.Now(),
	})
	s.state = StateReady
	s.lastActive = time.Now()
	s.mu.Unlock()

	return reply, nil
}

func (s *Session) resolve(ctx context.Context, text string, lang internal.Lang) internal.BotReply {
	if s.mode != config.ModeRemote {
		s.pause(ctx)
		return s.local.Resolve(text, lang)
	}

	s.context.Append(internal.Message{Role: internal.RoleUser, Content: text, CreatedAt: time.Now()})
	reply, err := s.remote.Resolve(ctx, s.context)
	if err != nil {
		s.logger.Warn("remote resolver failed, answering from faq",
			zap.String("model", s.remote.Model()),
			zap.Error(err))
		return s.local.Resolve(text, lang)
	}
	return reply
}

// pause holds a local reply back for the display delay.
func (s *Session) pause(ctx context.Context) {
	if s.localDelay <= 0 {
		return
	}
	t := time.NewTimer(s.localDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
