// Package ircadapter connects the bot to a classic IRC network.
package ircadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrstanley/girc"
	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands"
)

type Config struct {
	Server   string
	Port     int
	Nick     string
	Password string
	TLS      bool
	Channels []string
	Prefix   string
}

type MessageHandler interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
}

type Adapter struct {
	cfg     Config
	handler MessageHandler
	log     *zap.Logger
	client  *girc.Client
}

func NewAdapter(cfg Config, handler MessageHandler, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, handler: handler, log: log}
}

// Start connects and blocks until ctx is cancelled or the connection drops.
func (a *Adapter) Start(ctx context.Context) error {
	client := girc.New(girc.Config{
		Server:     a.cfg.Server,
		Port:       a.cfg.Port,
		Nick:       a.cfg.Nick,
		User:       a.cfg.Nick,
		Name:       a.cfg.Nick,
		ServerPass: a.cfg.Password,
		SSL:        a.cfg.TLS,
	})

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, _ girc.Event) {
		a.log.Info("irc connected", zap.String("server", a.cfg.Server))
		for _, channel := range a.cfg.Channels {
			c.Cmd.Join(channel)
		}
	})

	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		a.onMessage(ctx, c, e)
	})

	a.client = client

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	if err := client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("irc: connect: %w", err)
	}
	return ctx.Err()
}

func (a *Adapter) onMessage(ctx context.Context, c *girc.Client, e girc.Event) {
	if e.Source == nil || e.Source.Name == a.cfg.Nick {
		return
	}
	target := e.Params[0]
	text := e.Last()

	var channel domain.ChannelIdentifier
	replyTo := target
	if strings.HasPrefix(target, "#") {
		channel = domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: target}
	} else {
		// Direct message; reply goes back to the sender.
		channel = domain.ChannelIdentifier{Kind: domain.ChannelAnonymous, ID: e.Source.Name}
		replyTo = e.Source.Name
	}

	ec := executionContext{
		user:        domain.UserIdentifier{Platform: domain.PlatformIRC, ID: e.Source.Name},
		channel:     channel,
		displayName: e.Source.Name,
		prefixes:    []string{a.cfg.Prefix, a.cfg.Nick + ": ", a.cfg.Nick + ", "},
	}

	go func() {
		response := a.handler.HandleMessage(ctx, text, ec)
		if response == "" {
			return
		}
		for _, line := range strings.Split(response, "\n") {
			c.Cmd.Message(replyTo, line)
		}
	}()
}

func (a *Adapter) SendToChannel(_ context.Context, channel domain.ChannelIdentifier, text string) error {
	if a.client == nil {
		return fmt.Errorf("irc: not connected")
	}
	for _, line := range strings.Split(text, "\n") {
		a.client.Cmd.Message(channel.ID, line)
	}
	return nil
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
