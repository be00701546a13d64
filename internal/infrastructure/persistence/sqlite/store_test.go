package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"polybot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: "42"}

	created, err := s.GetOrCreateUser(ctx, id)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TwitchID != "42" {
		t.Fatalf("twitch id = %q, want 42", created.TwitchID)
	}

	again, err := s.GetOrCreateUser(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("second lookup created a new user: %d != %d", again.ID, created.ID)
	}
}

func TestMergeUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	twitchID := domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: "42"}
	discordID := domain.UserIdentifier{Platform: domain.PlatformDiscord, ID: "777"}

	primary, err := s.GetOrCreateUser(ctx, twitchID)
	if err != nil {
		t.Fatal(err)
	}
	secondary, err := s.GetOrCreateUser(ctx, discordID)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetUserData(ctx, secondary.ID, "location", "Berlin"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetUserData(ctx, primary.ID, "lastfm_name", "someone"); err != nil {
		t.Fatal(err)
	}

	merged, err := s.MergeUsers(ctx, primary, secondary)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if merged.TwitchID != "42" || merged.DiscordID != "777" {
		t.Fatalf("merged identities wrong: %+v", merged)
	}

	// Scratch data moved to the primary id.
	loc, err := s.GetUserData(ctx, primary.ID, "location")
	if err != nil {
		t.Fatal(err)
	}
	if loc != "Berlin" {
		t.Fatalf("location = %q, want Berlin", loc)
	}

	// The secondary's identity now resolves to the primary user.
	resolved, err := s.GetOrCreateUser(ctx, discordID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != primary.ID {
		t.Fatalf("discord identity resolves to %d, want %d", resolved.ID, primary.ID)
	}

	// The secondary row is gone.
	gone, err := s.GetUserByID(ctx, secondary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Fatalf("secondary user still present: %+v", gone)
	}
}

func TestCommandCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	channel := domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "1234"}

	if err := s.AddCommand(ctx, channel, "hello", "Hi {{arguments.[0]}}!"); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.AddCommand(ctx, channel, "hello", "other"); !errors.Is(err, domain.ErrCommandExists) {
		t.Fatalf("duplicate add: got %v, want ErrCommandExists", err)
	}

	cmd, err := s.GetCommand(ctx, channel, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if cmd == nil || cmd.Action != "Hi {{arguments.[0]}}!" {
		t.Fatalf("get: %+v", cmd)
	}

	if err := s.UpdateCommand(ctx, channel, "hello", "updated"); err != nil {
		t.Fatalf("update: %v", err)
	}
	cmd, err = s.GetCommand(ctx, channel, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Action != "updated" {
		t.Fatalf("action after update = %q", cmd.Action)
	}

	if err := s.SetCommandCooldown(ctx, cmd.ChannelID, "hello", 30); err != nil {
		t.Fatalf("set cooldown: %v", err)
	}
	cmd, _ = s.GetCommand(ctx, channel, "hello")
	if cmd.Cooldown == nil || *cmd.Cooldown != 30 {
		t.Fatalf("cooldown = %v, want 30", cmd.Cooldown)
	}

	if err := s.DeleteCommand(ctx, channel, "hello"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCommand(ctx, channel, "hello"); !errors.Is(err, domain.ErrCommandNotFound) {
		t.Fatalf("delete missing: got %v, want ErrCommandNotFound", err)
	}
}

func TestCommandsSeparatePerChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "1"}
	b := domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "2"}

	if err := s.AddCommand(ctx, a, "hello", "in a"); err != nil {
		t.Fatal(err)
	}

	cmd, err := s.GetCommand(ctx, b, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if cmd != nil {
		t.Fatalf("command leaked across channels: %+v", cmd)
	}
}

func TestChannelData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.GetOrCreateChannel(ctx, domain.ChannelIdentifier{Kind: domain.ChannelTelegram, ID: "-100"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetChannelData(ctx, ch.ID, "counter", "7"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetChannelData(ctx, ch.ID, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if v != "7" {
		t.Fatalf("value = %q, want 7", v)
	}

	if err := s.RemoveChannelData(ctx, ch.ID, "counter"); err != nil {
		t.Fatal(err)
	}
	v, err = s.GetChannelData(ctx, ch.ID, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("value after remove = %q, want empty", v)
	}
}

func TestAnonymousChannelNotPersisted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.GetOrCreateChannel(ctx, domain.ChannelIdentifier{Kind: domain.ChannelAnonymous})
	if err != nil {
		t.Fatal(err)
	}
	if ch != nil {
		t.Fatalf("anonymous channel must not be persisted, got %+v", ch)
	}

	if err := s.AddCommand(ctx, domain.ChannelIdentifier{Kind: domain.ChannelAnonymous}, "x", "y"); !errors.Is(err, domain.ErrAnonymousChannel) {
		t.Fatalf("got %v, want ErrAnonymousChannel", err)
	}
}
