package domain

import "testing"

func TestParseUserIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want UserIdentifier
		ok   bool
	}{
		{"twitch:42", UserIdentifier{Platform: PlatformTwitch, ID: "42"}, true},
		{"discord:123456", UserIdentifier{Platform: PlatformDiscord, ID: "123456"}, true},
		{"<@!123456>", UserIdentifier{Platform: PlatformDiscord, ID: "123456"}, true},
		{"irc:somebody", UserIdentifier{Platform: PlatformIRC, ID: "somebody"}, true},
		{"telegram:987", UserIdentifier{Platform: PlatformTelegram, ID: "987"}, true},
		{"local:127.0.0.1", UserIdentifier{Platform: PlatformLocal, ID: "127.0.0.1"}, true},
		{"noseparator", UserIdentifier{}, false},
		{"matrix:whatever", UserIdentifier{}, false},
		{"<@!123456", UserIdentifier{}, false},
	}

	for _, tc := range cases {
		got, err := ParseUserIdentifier(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseUserIdentifier(%q) error = %v, want ok=%v", tc.in, err, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("ParseUserIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestUserIdentifierRoundTrip(t *testing.T) {
	id := UserIdentifier{Platform: PlatformTwitch, ID: "42"}
	parsed, err := ParseUserIdentifier(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip: got %v, want %v", parsed, id)
	}
}

func TestChannelIdentifierEqualIgnoresDisplayName(t *testing.T) {
	a := ChannelIdentifier{Kind: ChannelTwitch, ID: "1234", DisplayName: "hello"}
	b := ChannelIdentifier{Kind: ChannelTwitch, ID: "1234"}
	if !a.Equal(b) {
		t.Fatal("identifiers with same id but different display name must be equal")
	}
	if a.Key() != b.Key() {
		t.Fatal("keys must match regardless of display name")
	}

	c := ChannelIdentifier{Kind: ChannelTelegram, ID: "1234", DisplayName: "group chat"}
	d := ChannelIdentifier{Kind: ChannelTelegram, ID: "1234"}
	if !c.Equal(d) {
		t.Fatal("telegram chats with same id must be equal")
	}

	if a.Equal(c) {
		t.Fatal("different kinds must not be equal")
	}
	if a.Equal(ChannelIdentifier{Kind: ChannelTwitch, ID: "999"}) {
		t.Fatal("different ids must not be equal")
	}
}

func TestChannelIdentifierCanonicalRoundTrip(t *testing.T) {
	cases := []ChannelIdentifier{
		{Kind: ChannelTwitch, ID: "1234", DisplayName: "somestreamer"},
		{Kind: ChannelDiscordGuild, ID: "987654"},
		{Kind: ChannelIRC, ID: "#channel"},
		{Kind: ChannelLocal, ID: "127.0.0.1:5555"},
		{Kind: ChannelTelegram, ID: "-10042", DisplayName: "group"},
		{Kind: ChannelAnonymous},
	}

	for _, id := range cases {
		parsed, err := ParseChannelIdentifier(id.Canonical())
		if err != nil {
			t.Fatalf("parse %q: %v", id.Canonical(), err)
		}
		if !parsed.Equal(id) {
			t.Fatalf("round trip of %q: got %v, want %v", id.Canonical(), parsed, id)
		}
	}
}

func TestParseChannelIdentifierInvalidPlatform(t *testing.T) {
	if _, err := ParseChannelIdentifier("matrix:123"); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}
