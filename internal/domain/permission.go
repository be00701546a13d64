package domain

import "fmt"

// Permission is the platform-agnostic permission level of a user in a
// channel. The numeric values form a total order:
// Default < ChannelMod < ChannelOwner < Admin.
type Permission int

const (
	PermissionDefault Permission = iota
	PermissionChannelMod
	PermissionChannelOwner
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionDefault:
		return "default"
	case PermissionChannelMod:
		return "channel_mod"
	case PermissionChannelOwner:
		return "channel_owner"
	case PermissionAdmin:
		return "admin"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// ParsePermission parses the textual form used for per-command overrides.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "default":
		return PermissionDefault, nil
	case "channel_mod", "mod":
		return PermissionChannelMod, nil
	case "channel_owner", "owner":
		return PermissionChannelOwner, nil
	case "admin":
		return PermissionAdmin, nil
	default:
		return PermissionDefault, fmt.Errorf("invalid permission %q", s)
	}
}
