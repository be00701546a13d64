package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands/cmderr"
)

// EventSubManager is the slice of the Twitch service the eventsub builtin
// needs.
type EventSubManager interface {
	CreateEventSubSubscription(ctx context.Context, eventType, broadcasterID, callback, secret string) (string, error)
	RemoveEventSubSubscription(ctx context.Context, id string) error
}

// EventSubBuiltin manages the persisted EventSub triggers of the current
// Twitch channel: subscriptions on the Twitch side, action rows on ours.
type EventSubBuiltin struct {
	store    domain.Store
	manager  EventSubManager
	callback string
	secret   string
}

func NewEventSubBuiltin(store domain.Store, manager EventSubManager, baseURL, secret string) *EventSubBuiltin {
	return &EventSubBuiltin{
		store:    store,
		manager:  manager,
		callback: strings.TrimRight(baseURL, "/") + "/hooks/eventsub",
		secret:   secret,
	}
}

func (c *EventSubBuiltin) Name() string                          { return "eventsub" }
func (c *EventSubBuiltin) Aliases() []string                     { return nil }
func (c *EventSubBuiltin) RequiredPermission() domain.Permission { return domain.PermissionChannelMod }
func (c *EventSubBuiltin) Cooldown() time.Duration               { return 0 }

func (c *EventSubBuiltin) Execute(ctx context.Context, exec *Execution) (string, error) {
	if c.manager == nil {
		return "", cmderr.Configuration("twitch is not configured")
	}
	channel := exec.Context.Channel()
	if channel.Kind != domain.ChannelTwitch {
		return "", cmderr.Configuration("eventsub only works in twitch channels")
	}
	if len(exec.Arguments) == 0 {
		return "", cmderr.MissingArgument("subcommand (add, list, remove)")
	}

	switch strings.ToLower(exec.Arguments[0]) {
	case "add":
		return c.add(ctx, channel.ID, exec.Arguments[1:])
	case "list":
		return c.list(ctx, channel.ID)
	case "remove", "delete":
		return c.remove(ctx, exec.Arguments[1:])
	default:
		return "", cmderr.InvalidArgument(exec.Arguments[0])
	}
}

func (c *EventSubBuiltin) add(ctx context.Context, broadcasterID string, args []string) (string, error) {
	if len(args) < 2 {
		return "", cmderr.MissingArgument("event type and action")
	}
	eventType := args[0]
	action := strings.Join(args[1:], " ")

	id, err := c.manager.CreateEventSubSubscription(ctx, eventType, broadcasterID, c.callback, c.secret)
	if err != nil {
		return "", cmderr.Generic(err)
	}

	trigger := domain.EventSubTrigger{
		ID:            id,
		BroadcasterID: broadcasterID,
		EventType:     eventType,
		Action:        action,
	}
	if err := c.store.AddEventSubTrigger(ctx, trigger); err != nil {
		return "", cmderr.Database(err)
	}
	return fmt.Sprintf("Subscribed to %s (%s)", eventType, id), nil
}

func (c *EventSubBuiltin) list(ctx context.Context, broadcasterID string) (string, error) {
	triggers, err := c.store.GetEventSubTriggersForBroadcaster(ctx, broadcasterID)
	if err != nil {
		return "", cmderr.Database(err)
	}
	if len(triggers) == 0 {
		return "No eventsub triggers", nil
	}
	parts := make([]string, 0, len(triggers))
	for _, t := range triggers {
		parts = append(parts, fmt.Sprintf("%s (%s)", t.EventType, t.ID))
	}
	return strings.Join(parts, ", "), nil
}

func (c *EventSubBuiltin) remove(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", cmderr.MissingArgument("subscription id")
	}
	id := args[0]

	if err := c.manager.RemoveEventSubSubscription(ctx, id); err != nil {
		return "", cmderr.Generic(err)
	}
	if err := c.store.DeleteEventSubTrigger(ctx, id); err != nil {
		return "", cmderr.Database(err)
	}
	return "Subscription removed", nil
}
