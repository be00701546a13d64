// Package twitchadapter connects the bot to Twitch chat over IRC.
package twitchadapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/adeithe/go-twitch/irc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"polybot/internal/domain"
	twitchinfra "polybot/internal/infrastructure/platform/twitch"
	"polybot/internal/usecase/commands"
)

type Config struct {
	Username   string
	OAuthToken string
	Channels   []string
	Prefix     string
}

// MessageHandler is the dispatcher entry point the adapter feeds.
type MessageHandler interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
}

type Adapter struct {
	cfg     Config
	handler MessageHandler
	helix   *twitchinfra.Service
	log     *zap.Logger

	// Twitch allows 20 messages per 30 seconds for regular bots.
	limiter *rate.Limiter

	mu     sync.RWMutex
	conn   *irc.Conn
	logins map[string]string // channel id -> login, learned from traffic
}

func NewAdapter(cfg Config, handler MessageHandler, helix *twitchinfra.Service, log *zap.Logger) *Adapter {
	return &Adapter{
		cfg:     cfg,
		handler: handler,
		helix:   helix,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(20.0/30.0), 20),
		logins:  make(map[string]string),
	}
}

// Start connects, joins the configured channels and blocks until ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	if len(a.cfg.Channels) == 0 {
		return errors.New("twitch: no channels configured")
	}
	if a.cfg.Username == "" || a.cfg.OAuthToken == "" {
		return errors.New("twitch: username or oauth token missing")
	}

	conn := &irc.Conn{}
	if err := conn.SetLogin(a.cfg.Username, a.cfg.OAuthToken); err != nil {
		return fmt.Errorf("twitch: SetLogin: %w", err)
	}

	conn.OnMessage(func(cm irc.ChatMessage) {
		a.onMessage(ctx, cm)
	})

	if err := conn.Connect(); err != nil {
		return fmt.Errorf("twitch: Connect: %w", err)
	}
	if err := conn.Join(a.cfg.Channels...); err != nil {
		return fmt.Errorf("twitch: Join: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.log.Info("twitch connected",
		zap.String("username", a.cfg.Username),
		zap.Strings("channels", a.cfg.Channels))

	<-ctx.Done()

	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.mu.Unlock()
	return ctx.Err()
}

func (a *Adapter) onMessage(ctx context.Context, cm irc.ChatMessage) {
	if cm.Sender.Username == a.cfg.Username {
		return
	}

	channelID := strconv.FormatInt(cm.ChannelID, 10)
	a.mu.Lock()
	a.logins[channelID] = cm.Channel
	a.mu.Unlock()

	ec := executionContext{
		user:        domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: strconv.FormatInt(cm.Sender.ID, 10)},
		channel:     domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: channelID, DisplayName: cm.Channel},
		displayName: cm.Sender.DisplayName,
		prefixes:    []string{a.cfg.Prefix, "@" + a.cfg.Username + " "},
	}

	go func() {
		response := a.handler.HandleMessage(ctx, cm.Text, ec)
		if response == "" {
			return
		}
		if err := a.SendToChannel(ctx, ec.channel, response); err != nil {
			a.log.Warn("twitch send failed", zap.String("channel", cm.Channel), zap.Error(err))
		}
	}()
}

// SendToChannel resolves the channel login and sends through the shared rate
// limiter.
func (a *Adapter) SendToChannel(ctx context.Context, channel domain.ChannelIdentifier, text string) error {
	a.mu.RLock()
	conn := a.conn
	login, known := a.logins[channel.ID]
	a.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.New("twitch: not connected")
	}
	if !known {
		if a.helix == nil {
			return fmt.Errorf("twitch: unknown channel %s", channel.ID)
		}
		user, err := a.helix.GetUserByID(ctx, channel.ID)
		if err != nil {
			return fmt.Errorf("twitch: resolve channel %s: %w", channel.ID, err)
		}
		login = user.Login
		a.mu.Lock()
		a.logins[channel.ID] = login
		a.mu.Unlock()
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return conn.Say(login, text)
}

type executionContext struct {
	user        domain.UserIdentifier
	channel     domain.ChannelIdentifier
	displayName string
	prefixes    []string
}

func (e executionContext) UserIdentifier() domain.UserIdentifier { return e.user }
func (e executionContext) Channel() domain.ChannelIdentifier     { return e.channel }
func (e executionContext) DisplayName() string                   { return e.displayName }
func (e executionContext) Prefixes() []string                    { return e.prefixes }
