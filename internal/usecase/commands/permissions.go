package commands

import (
	"context"
	"fmt"
	"strings"

	"polybot/internal/domain"
)

// TwitchModSource lists the moderator login names of a broadcaster.
type TwitchModSource interface {
	GetChannelMods(ctx context.Context, broadcasterID string) ([]string, error)
}

// DiscordAdminSource answers whether a member holds the administrator bit in
// a guild.
type DiscordAdminSource interface {
	IsGuildAdmin(ctx context.Context, guildID, userID string) (bool, error)
}

// PermissionResolver maps a (user, channel) pair to a permission level. A
// failed platform query is an error, never a silent downgrade to Default.
type PermissionResolver struct {
	admin   domain.UserIdentifier
	twitch  TwitchModSource
	discord DiscordAdminSource
}

func NewPermissionResolver(admin domain.UserIdentifier, twitch TwitchModSource, discord DiscordAdminSource) *PermissionResolver {
	return &PermissionResolver{admin: admin, twitch: twitch, discord: discord}
}

func (r *PermissionResolver) Resolve(ctx context.Context, user domain.User, ec ExecutionContext) (domain.Permission, error) {
	if r.isAdmin(user) {
		return domain.PermissionAdmin, nil
	}

	channel := ec.Channel()
	switch channel.Kind {
	case domain.ChannelTwitch:
		return r.resolveTwitch(ctx, user, ec, channel)
	case domain.ChannelDiscordGuild:
		return r.resolveDiscord(ctx, user, channel)
	case domain.ChannelLocal:
		// The local TCP listener only accepts connections from the host
		// the bot runs on.
		return domain.PermissionChannelOwner, nil
	case domain.ChannelAnonymous:
		// DMs and similar contexts have no third parties to protect, so
		// the user may manage their own command space.
		return domain.PermissionChannelMod, nil
	case domain.ChannelIRC, domain.ChannelTelegram:
		// No mod metadata is queried on these platforms yet.
		return domain.PermissionDefault, nil
	default:
		return domain.PermissionDefault, nil
	}
}

func (r *PermissionResolver) isAdmin(user domain.User) bool {
	if r.admin.IsZero() {
		return false
	}
	for _, id := range user.Identifiers() {
		if id == r.admin {
			return true
		}
	}
	return false
}

func (r *PermissionResolver) resolveTwitch(ctx context.Context, user domain.User, ec ExecutionContext, channel domain.ChannelIdentifier) (domain.Permission, error) {
	if user.TwitchID != "" && user.TwitchID == channel.ID {
		return domain.PermissionChannelOwner, nil
	}
	if r.twitch == nil {
		return domain.PermissionDefault, fmt.Errorf("permissions: twitch is not configured")
	}

	mods, err := r.twitch.GetChannelMods(ctx, channel.ID)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("permissions: %w", err)
	}
	name := strings.ToLower(ec.DisplayName())
	for _, mod := range mods {
		if strings.ToLower(mod) == name {
			return domain.PermissionChannelMod, nil
		}
	}
	return domain.PermissionDefault, nil
}

func (r *PermissionResolver) resolveDiscord(ctx context.Context, user domain.User, channel domain.ChannelIdentifier) (domain.Permission, error) {
	if user.DiscordID == "" {
		return domain.PermissionDefault, nil
	}
	if r.discord == nil {
		return domain.PermissionDefault, fmt.Errorf("permissions: discord is not configured")
	}

	admin, err := r.discord.IsGuildAdmin(ctx, channel.ID, user.DiscordID)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("permissions: %w", err)
	}
	if admin {
		return domain.PermissionChannelMod, nil
	}
	return domain.PermissionDefault, nil
}
