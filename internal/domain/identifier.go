package domain

import (
	"fmt"
	"strings"
)

// Platform names a chat platform a user identity can originate from.
type Platform string

const (
	PlatformTwitch   Platform = "twitch"
	PlatformDiscord  Platform = "discord"
	PlatformIRC      Platform = "irc"
	PlatformTelegram Platform = "telegram"
	PlatformLocal    Platform = "local"
)

// UserIdentifier is a platform-native user identity. Equality is structural;
// the canonical text form is "platform:id".
type UserIdentifier struct {
	Platform Platform
	ID       string
}

func (u UserIdentifier) String() string {
	return string(u.Platform) + ":" + u.ID
}

func (u UserIdentifier) IsZero() bool {
	return u.Platform == "" && u.ID == ""
}

// ParseUserIdentifier parses the "platform:id" form. The Discord mention
// shorthand "<@!id>" is accepted as well.
func ParseUserIdentifier(s string) (UserIdentifier, error) {
	if rest, ok := strings.CutPrefix(s, "<@!"); ok {
		id, ok := strings.CutSuffix(rest, ">")
		if !ok {
			return UserIdentifier{}, fmt.Errorf("malformed mention %q", s)
		}
		return UserIdentifier{Platform: PlatformDiscord, ID: id}, nil
	}

	platform, id, ok := strings.Cut(s, ":")
	if !ok {
		return UserIdentifier{}, fmt.Errorf("missing `:` separator, must be in the form of `platform:user`")
	}

	switch Platform(platform) {
	case PlatformTwitch, PlatformDiscord, PlatformIRC, PlatformTelegram, PlatformLocal:
		return UserIdentifier{Platform: Platform(platform), ID: id}, nil
	default:
		return UserIdentifier{}, fmt.Errorf("invalid platform %q", platform)
	}
}

// ChannelKind names the platform a channel belongs to. The values are the
// canonical platform names persisted in the channels table.
type ChannelKind string

const (
	ChannelTwitch       ChannelKind = "twitch"
	ChannelDiscordGuild ChannelKind = "discord_guild"
	ChannelIRC          ChannelKind = "irc"
	ChannelLocal        ChannelKind = "local"
	ChannelTelegram     ChannelKind = "telegram"
	ChannelAnonymous    ChannelKind = "anonymous"
)

// ChannelIdentifier identifies a channel on a platform. DisplayName is
// cosmetic only: two identifiers of the same kind and id are equal no matter
// what display metadata they carry, and Key/Canonical never include it.
type ChannelIdentifier struct {
	Kind        ChannelKind
	ID          string
	DisplayName string
}

// ChannelKey is the comparable identity of a channel, usable as a map key.
type ChannelKey struct {
	Kind ChannelKind
	ID   string
}

func (c ChannelIdentifier) Key() ChannelKey {
	return ChannelKey{Kind: c.Kind, ID: c.ID}
}

func (c ChannelIdentifier) Equal(other ChannelIdentifier) bool {
	return c.Kind == other.Kind && c.ID == other.ID
}

func (c ChannelIdentifier) IsAnonymous() bool {
	return c.Kind == ChannelAnonymous || c.Kind == ""
}

// Canonical returns the "platform:id" round-trip form.
func (c ChannelIdentifier) Canonical() string {
	if c.IsAnonymous() {
		return string(ChannelAnonymous)
	}
	return string(c.Kind) + ":" + c.ID
}

// String is the human-readable form, preferring display metadata.
func (c ChannelIdentifier) String() string {
	if c.IsAnonymous() {
		return "anonymous"
	}
	if c.DisplayName != "" {
		return string(c.Kind) + "-" + c.DisplayName
	}
	return string(c.Kind) + "-" + c.ID
}

// NewChannelIdentifier builds an identifier from a persisted (platform, id)
// pair.
func NewChannelIdentifier(platform, id string) (ChannelIdentifier, error) {
	switch ChannelKind(platform) {
	case ChannelTwitch, ChannelDiscordGuild, ChannelIRC, ChannelLocal, ChannelTelegram:
		return ChannelIdentifier{Kind: ChannelKind(platform), ID: id}, nil
	case ChannelAnonymous:
		return ChannelIdentifier{Kind: ChannelAnonymous}, nil
	default:
		return ChannelIdentifier{}, fmt.Errorf("invalid channel platform %q", platform)
	}
}

// ParseChannelIdentifier parses the Canonical "platform:id" form.
func ParseChannelIdentifier(s string) (ChannelIdentifier, error) {
	platform, id, _ := strings.Cut(s, ":")
	return NewChannelIdentifier(platform, id)
}
