package domain

import "testing"

func TestPermissionOrdering(t *testing.T) {
	ordered := []Permission{PermissionDefault, PermissionChannelMod, PermissionChannelOwner, PermissionAdmin}

	for i, lower := range ordered {
		for _, higher := range ordered[i+1:] {
			if !(lower < higher) {
				t.Fatalf("expected %v < %v", lower, higher)
			}
		}
	}
}

func TestParsePermissionRoundTrip(t *testing.T) {
	for _, p := range []Permission{PermissionDefault, PermissionChannelMod, PermissionChannelOwner, PermissionAdmin} {
		parsed, err := ParsePermission(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p.String(), err)
		}
		if parsed != p {
			t.Fatalf("round trip of %v: got %v", p, parsed)
		}
	}

	if _, err := ParsePermission("supreme_leader"); err == nil {
		t.Fatal("expected error for unknown permission")
	}
}

func TestUserMerge(t *testing.T) {
	primary := User{ID: 1, TwitchID: "42"}
	secondary := User{ID: 2, DiscordID: "777", TwitchID: "should-not-overwrite"}

	primary.Merge(secondary)

	if primary.TwitchID != "42" {
		t.Fatalf("merge must not overwrite linked identities, got %q", primary.TwitchID)
	}
	if primary.DiscordID != "777" {
		t.Fatalf("merge must copy missing identities, got %q", primary.DiscordID)
	}
	if len(primary.Identifiers()) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", primary.Identifiers())
	}
}
