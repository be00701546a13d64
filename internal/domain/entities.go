package domain

// User is a persisted canonical user. Each platform column holds at most one
// linked identity; empty means not linked.
type User struct {
	ID         int64
	TwitchID   string
	DiscordID  string
	IrcName    string
	LocalAddr  string
	TelegramID string
}

// Merge copies identities linked to other into u wherever u has no link for
// that platform yet. The persisted merge in the store builds on this.
func (u *User) Merge(other User) {
	if u.TwitchID == "" {
		u.TwitchID = other.TwitchID
	}
	if u.DiscordID == "" {
		u.DiscordID = other.DiscordID
	}
	if u.IrcName == "" {
		u.IrcName = other.IrcName
	}
	if u.LocalAddr == "" {
		u.LocalAddr = other.LocalAddr
	}
	if u.TelegramID == "" {
		u.TelegramID = other.TelegramID
	}
}

// Identifiers returns every platform identity linked to the user.
func (u User) Identifiers() []UserIdentifier {
	var out []UserIdentifier
	if u.TwitchID != "" {
		out = append(out, UserIdentifier{Platform: PlatformTwitch, ID: u.TwitchID})
	}
	if u.DiscordID != "" {
		out = append(out, UserIdentifier{Platform: PlatformDiscord, ID: u.DiscordID})
	}
	if u.IrcName != "" {
		out = append(out, UserIdentifier{Platform: PlatformIRC, ID: u.IrcName})
	}
	if u.LocalAddr != "" {
		out = append(out, UserIdentifier{Platform: PlatformLocal, ID: u.LocalAddr})
	}
	if u.TelegramID != "" {
		out = append(out, UserIdentifier{Platform: PlatformTelegram, ID: u.TelegramID})
	}
	return out
}

// Channel is a persisted channel row, keyed by (platform, platform-native id).
type Channel struct {
	ID       int64
	Platform string
	Channel  string
}

func (c Channel) Identifier() ChannelIdentifier {
	id, err := NewChannelIdentifier(c.Platform, c.Channel)
	if err != nil {
		return ChannelIdentifier{Kind: ChannelAnonymous}
	}
	return id
}

// Command is a user-authored custom command stored per channel.
type Command struct {
	ChannelID  int64
	Name       string
	Action     string
	Permission *Permission // nil = no override, anyone may run it
	Cooldown   *int        // seconds; nil = default cooldown
	Triggers   []string    // raw-message prefix phrases
	Aliases    []string
}

// EventSubTrigger is a persisted Twitch EventSub subscription together with
// the template action it runs when the event fires.
type EventSubTrigger struct {
	ID              string
	BroadcasterID   string
	EventType       string
	Action          string
	CreationPayload string
}

// MirrorConnection re-posts messages from one channel into another.
type MirrorConnection struct {
	FromChannelID int64
	ToChannelID   int64
}
