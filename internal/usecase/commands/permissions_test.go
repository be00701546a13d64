package commands

import (
	"context"
	"errors"
	"testing"

	"polybot/internal/domain"
)

type fakeExecutionContext struct {
	user     domain.UserIdentifier
	channel  domain.ChannelIdentifier
	name     string
	prefixes []string
}

func (f fakeExecutionContext) UserIdentifier() domain.UserIdentifier { return f.user }
func (f fakeExecutionContext) Channel() domain.ChannelIdentifier     { return f.channel }
func (f fakeExecutionContext) DisplayName() string                   { return f.name }

func (f fakeExecutionContext) Prefixes() []string {
	if f.prefixes == nil {
		return []string{"!"}
	}
	return f.prefixes
}

type fakeModSource struct {
	mods map[string][]string
	err  error
}

func (f fakeModSource) GetChannelMods(_ context.Context, broadcasterID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mods[broadcasterID], nil
}

type fakeAdminSource struct {
	admins map[string]bool
	err    error
}

func (f fakeAdminSource) IsGuildAdmin(_ context.Context, _, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.admins[userID], nil
}

func TestResolveAdminShortCircuits(t *testing.T) {
	admin := domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: "42"}
	r := NewPermissionResolver(admin, nil, nil)

	ec := fakeExecutionContext{
		user:    admin,
		channel: domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: "#chan"},
	}
	perm, err := r.Resolve(context.Background(), domain.User{ID: 1, TwitchID: "42"}, ec)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if perm != domain.PermissionAdmin {
		t.Fatalf("got %v, want admin", perm)
	}
}

func TestResolveTwitch(t *testing.T) {
	mods := fakeModSource{mods: map[string][]string{"100": {"ModName"}}}
	r := NewPermissionResolver(domain.UserIdentifier{}, mods, nil)
	channel := domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "100"}

	tests := []struct {
		name string
		user domain.User
		ec   fakeExecutionContext
		want domain.Permission
	}{
		{
			name: "broadcaster is channel owner",
			user: domain.User{ID: 1, TwitchID: "100"},
			ec:   fakeExecutionContext{channel: channel, name: "broadcaster"},
			want: domain.PermissionChannelOwner,
		},
		{
			name: "moderator by name",
			user: domain.User{ID: 2, TwitchID: "200"},
			ec:   fakeExecutionContext{channel: channel, name: "modname"},
			want: domain.PermissionChannelMod,
		},
		{
			name: "viewer",
			user: domain.User{ID: 3, TwitchID: "300"},
			ec:   fakeExecutionContext{channel: channel, name: "someone"},
			want: domain.PermissionDefault,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perm, err := r.Resolve(context.Background(), tt.user, tt.ec)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if perm != tt.want {
				t.Fatalf("got %v, want %v", perm, tt.want)
			}
		})
	}
}

func TestResolveTwitchQueryFailurePropagates(t *testing.T) {
	mods := fakeModSource{err: errors.New("helix down")}
	r := NewPermissionResolver(domain.UserIdentifier{}, mods, nil)

	ec := fakeExecutionContext{
		channel: domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "100"},
		name:    "someone",
	}
	_, err := r.Resolve(context.Background(), domain.User{ID: 1, TwitchID: "200"}, ec)
	if err == nil {
		t.Fatal("platform failure must propagate, not default")
	}
}

func TestResolveDiscordAdmin(t *testing.T) {
	admins := fakeAdminSource{admins: map[string]bool{"d1": true}}
	r := NewPermissionResolver(domain.UserIdentifier{}, nil, admins)
	channel := domain.ChannelIdentifier{Kind: domain.ChannelDiscordGuild, ID: "g1"}

	perm, err := r.Resolve(context.Background(), domain.User{ID: 1, DiscordID: "d1"},
		fakeExecutionContext{channel: channel})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if perm != domain.PermissionChannelMod {
		t.Fatalf("got %v, want channel_mod", perm)
	}

	perm, err = r.Resolve(context.Background(), domain.User{ID: 2, DiscordID: "d2"},
		fakeExecutionContext{channel: channel})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if perm != domain.PermissionDefault {
		t.Fatalf("got %v, want default", perm)
	}
}

func TestResolveFixedLevels(t *testing.T) {
	r := NewPermissionResolver(domain.UserIdentifier{}, nil, nil)

	tests := []struct {
		kind domain.ChannelKind
		want domain.Permission
	}{
		{domain.ChannelLocal, domain.PermissionChannelOwner},
		{domain.ChannelAnonymous, domain.PermissionChannelMod},
		{domain.ChannelIRC, domain.PermissionDefault},
		{domain.ChannelTelegram, domain.PermissionDefault},
	}
	for _, tt := range tests {
		ec := fakeExecutionContext{channel: domain.ChannelIdentifier{Kind: tt.kind, ID: "x"}}
		perm, err := r.Resolve(context.Background(), domain.User{ID: 1}, ec)
		if err != nil {
			t.Fatalf("%s: Resolve: %v", tt.kind, err)
		}
		if perm != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.kind, perm, tt.want)
		}
	}
}
