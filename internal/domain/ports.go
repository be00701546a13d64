package domain

import (
	"context"
	"errors"
)

var (
	// ErrCommandExists is returned when creating a command whose name is
	// already taken in the channel.
	ErrCommandExists = errors.New("command already exists")
	// ErrCommandNotFound is returned when referencing a command that does
	// not exist in the channel.
	ErrCommandNotFound = errors.New("command not found")
	// ErrAnonymousChannel is returned for operations that need a persisted
	// channel when the context has none (DMs and similar).
	ErrAnonymousChannel = errors.New("anonymous channels are not persisted")
)

// ChannelSender delivers a message to a channel on its native transport.
// Implemented by the outgoing side of the platform adapters.
type ChannelSender interface {
	SendToChannel(ctx context.Context, channel ChannelIdentifier, text string) error
}

// Store is the narrow persistence contract the command engine depends on.
type Store interface {
	GetUser(ctx context.Context, id UserIdentifier) (*User, error)
	GetUserByID(ctx context.Context, userID int64) (*User, error)
	GetOrCreateUser(ctx context.Context, id UserIdentifier) (User, error)
	// MergeUsers moves all identities and scratch data of secondary into
	// primary and deletes secondary. Transactional.
	MergeUsers(ctx context.Context, primary, secondary User) (User, error)

	GetOrCreateChannel(ctx context.Context, id ChannelIdentifier) (*Channel, error)
	GetChannelByID(ctx context.Context, channelID int64) (*Channel, error)

	GetCommand(ctx context.Context, channel ChannelIdentifier, name string) (*Command, error)
	GetCommands(ctx context.Context, channelID int64) ([]Command, error)
	AddCommand(ctx context.Context, channel ChannelIdentifier, name, action string) error
	UpdateCommand(ctx context.Context, channel ChannelIdentifier, name, action string) error
	DeleteCommand(ctx context.Context, channel ChannelIdentifier, name string) error
	SetCommandTriggers(ctx context.Context, channelID int64, name, triggers string) error
	SetCommandCooldown(ctx context.Context, channelID int64, name string, seconds int) error
	SetCommandPermission(ctx context.Context, channelID int64, name string, permission Permission) error

	GetUserData(ctx context.Context, userID int64, key string) (string, error)
	SetUserData(ctx context.Context, userID int64, key, value string) error
	RemoveUserData(ctx context.Context, userID int64, key string) error

	GetChannelData(ctx context.Context, channelID int64, key string) (string, error)
	SetChannelData(ctx context.Context, channelID int64, key, value string) error
	RemoveChannelData(ctx context.Context, channelID int64, key string) error

	GetEventSubTriggers(ctx context.Context) ([]EventSubTrigger, error)
	GetEventSubTriggersForBroadcaster(ctx context.Context, broadcasterID string) ([]EventSubTrigger, error)
	GetEventSubRedeemAction(ctx context.Context, id string) (string, error)
	AddEventSubTrigger(ctx context.Context, trigger EventSubTrigger) error
	DeleteEventSubTrigger(ctx context.Context, id string) error
	UpdateEventSubTriggerID(ctx context.Context, oldID, newID string) error

	GetMirrorConnections(ctx context.Context) ([]MirrorConnection, error)
}
