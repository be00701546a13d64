// Package discordadapter connects the bot to Discord over the gateway.
package discordadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
}

type Adapter struct {
	session *discordgo.Session
	handler MessageHandler
	prefix  string
	log     *zap.Logger

	// last text channel seen per guild, used when a send targets the guild
	// rather than a reply to a specific message.
	mu           sync.RWMutex
	guildOutlets map[string]string
}

func NewAdapter(session *discordgo.Session, handler MessageHandler, prefix string, log *zap.Logger) *Adapter {
	return &Adapter{
		session:      session,
		handler:      handler,
		prefix:       prefix,
		log:          log,
		guildOutlets: make(map[string]string),
	}
}

// Start opens the gateway connection and blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	remove := a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.onMessage(ctx, m)
	})
	defer remove()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open: %w", err)
	}
	a.log.Info("discord connected", zap.String("user", a.session.State.User.Username))

	<-ctx.Done()
	if err := a.session.Close(); err != nil {
		a.log.Warn("discord close failed", zap.Error(err))
	}
	return ctx.Err()
}

func (a *Adapter) onMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	var channel domain.ChannelIdentifier
	if m.GuildID != "" {
		channel = domain.ChannelIdentifier{Kind: domain.ChannelDiscordGuild, ID: m.GuildID}
		a.mu.Lock()
		a.guildOutlets[m.GuildID] = m.ChannelID
		a.mu.Unlock()
	} else {
		channel = domain.ChannelIdentifier{Kind: domain.ChannelAnonymous, ID: m.Author.ID}
	}

	ec := executionContext{
		user:        domain.UserIdentifier{Platform: domain.PlatformDiscord, ID: m.Author.ID},
		channel:     channel,
		displayName: m.Author.Username,
		prefixes: []string{
			a.prefix,
			"<@" + a.session.State.User.ID + "> ",
			"<@!" + a.session.State.User.ID + "> ",
		},
	}

	go func() {
		response := a.handler.HandleMessage(ctx, m.Content, ec)
		if response == "" {
			return
		}
		_, err := a.session.ChannelMessageSend(m.ChannelID, response, discordgo.WithContext(ctx))
		if err != nil {
			a.log.Warn("discord send failed", zap.String("channel", m.ChannelID), zap.Error(err))
		}
	}()
}

// SendToChannel posts into the last active text channel of the guild.
func (a *Adapter) SendToChannel(ctx context.Context, channel domain.ChannelIdentifier, text string) error {
	a.mu.RLock()
	outlet, ok := a.guildOutlets[channel.ID]
	a.mu.RUnlock()

	if !ok {
		guild, err := a.session.Guild(channel.ID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("discord: guild %s: %w", channel.ID, err)
		}
		if guild.SystemChannelID == "" {
			return fmt.Errorf("discord: no outlet channel known for guild %s", channel.ID)
		}
		outlet = guild.SystemChannelID
	}

	_, err := a.session.ChannelMessageSend(outlet, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
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
