// Package template renders user-authored custom commands. Actions are
// handlebars sources compiled with raymond; the helper table gives templates
// access to platform side effects (moderation, cross-channel sends, scratch
// storage, external APIs, script evaluation).
package template

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/infrastructure/api"
)

// InquiryContext carries everything a single render may need about the
// inquiring user and channel. Permission resolution is deferred until a
// helper actually asks for it.
type InquiryContext struct {
	User              domain.User
	UserIdentifier    domain.UserIdentifier
	DisplayName       string
	Channel           domain.ChannelIdentifier
	ChannelID         int64
	Arguments         []string
	ResolvePermission func(context.Context) (domain.Permission, error)
}

// ScriptEvaluator runs a script source in the sandbox. Implemented by the
// script package; declared here to keep the dependency one-directional.
type ScriptEvaluator interface {
	Eval(ctx context.Context, source string, channelID int64) (string, error)
}

// Moderator issues platform-level timeouts. Implemented by the Twitch
// service; nil when Twitch is not configured.
type Moderator interface {
	TimeoutUser(ctx context.Context, broadcasterID, userID string, duration int, reason string) error
}

type Engine struct {
	store   domain.Store
	sender  domain.ChannelSender
	mod     Moderator
	script  ScriptEvaluator
	spotify *api.SpotifyClient
	lastfm  *api.LastFMClient
	lingva  *api.LingvaClient
	weather *api.OwmClient
	finnhub *api.FinnhubClient
	log     *zap.Logger
}

type EngineDeps struct {
	Store   domain.Store
	Sender  domain.ChannelSender
	Mod     Moderator
	Script  ScriptEvaluator
	Spotify *api.SpotifyClient
	LastFM  *api.LastFMClient
	Lingva  *api.LingvaClient
	Weather *api.OwmClient
	Finnhub *api.FinnhubClient
	Log     *zap.Logger
}

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		store:   deps.Store,
		sender:  deps.Sender,
		mod:     deps.Mod,
		script:  deps.Script,
		spotify: deps.Spotify,
		lastfm:  deps.LastFM,
		lingva:  deps.Lingva,
		weather: deps.Weather,
		finnhub: deps.Finnhub,
		log:     deps.Log,
	}
}

// renderState is the per-render scratch shared between helpers: the first
// helper error wins, and set/vars round-trip named values within one render.
type renderState struct {
	mu   sync.Mutex
	err  error
	vars map[string]string
}

func (s *renderState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *renderState) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Render executes the template on its own goroutine so a panicking helper
// never takes the dispatcher down. Helper errors abort the render and are
// returned to the caller; an empty result means no response.
func (e *Engine) Render(ctx context.Context, source string, inquiry InquiryContext) (string, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", fmt.Errorf("template: parse: %w", err)
	}
	if err := validateSource(source); err != nil {
		return "", fmt.Errorf("template: %w", err)
	}

	state := &renderState{vars: make(map[string]string)}
	e.registerHelpers(ctx, tpl, inquiry, state)

	execCtx := map[string]interface{}{
		"arguments": inquiry.Arguments,
		"user":      inquiry.DisplayName,
		"channel":   inquiry.Channel.ID,
		"vars":      state.vars,
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("template: render panicked: %v", r)}
			}
		}()
		out, err := tpl.Exec(execCtx)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("template: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("template: %w", res.err)
		}
		if ferr := state.failure(); ferr != nil {
			return "", fmt.Errorf("template: %w", ferr)
		}
		// raymond HTML-escapes plain mustaches; chat output is plain text.
		return strings.TrimSpace(html.UnescapeString(res.out)), nil
	}
}
