// Package commands is the dispatch engine: it turns an incoming chat message
// into a builtin or custom command execution and a text response.
package commands

import (
	"context"

	"polybot/internal/domain"
	"polybot/internal/usecase/template"
)

// ExecutionContext describes where a message came from. Platform adapters
// implement it for real chat messages; ServerExecutionContext stands in for
// API- and EventSub-originated executions.
type ExecutionContext interface {
	UserIdentifier() domain.UserIdentifier
	Channel() domain.ChannelIdentifier
	DisplayName() string
	// Prefixes are the strings that mark a message as a command on this
	// platform, checked in order.
	Prefixes() []string
}

// ServerExecutionContext runs a command as a given user in a given channel
// without a platform message behind it.
type ServerExecutionContext struct {
	TargetChannel domain.ChannelIdentifier
	User          domain.UserIdentifier
	Name          string
}

func (c ServerExecutionContext) UserIdentifier() domain.UserIdentifier { return c.User }
func (c ServerExecutionContext) Channel() domain.ChannelIdentifier     { return c.TargetChannel }
func (c ServerExecutionContext) Prefixes() []string                    { return []string{""} }

func (c ServerExecutionContext) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.User.String()
}

// Execution is the resolved state handed to a builtin: the persisted user,
// the channel (nil when anonymous), the tokenized arguments and a lazy
// permission lookup.
type Execution struct {
	Context    ExecutionContext
	User       domain.User
	ChannelRow *domain.Channel
	// InvokedAs is the name the caller typed, which may be an alias.
	InvokedAs   string
	Arguments   []string
	permission  *domain.Permission
	resolvePerm func(context.Context) (domain.Permission, error)
}

// Permission resolves and caches the caller's permission level.
func (e *Execution) Permission(ctx context.Context) (domain.Permission, error) {
	if e.permission != nil {
		return *e.permission, nil
	}
	perm, err := e.resolvePerm(ctx)
	if err != nil {
		return domain.PermissionDefault, err
	}
	e.permission = &perm
	return perm, nil
}

// ChannelID returns the persisted channel row id, or 0 for anonymous
// channels.
func (e *Execution) ChannelID() int64 {
	if e.ChannelRow == nil {
		return 0
	}
	return e.ChannelRow.ID
}

// Inquiry builds the template render context. A nil args keeps the
// execution's own arguments.
func (e *Execution) Inquiry(args []string) template.InquiryContext {
	if args == nil {
		args = e.Arguments
	}
	return template.InquiryContext{
		User:           e.User,
		UserIdentifier: e.Context.UserIdentifier(),
		DisplayName:    e.Context.DisplayName(),
		Channel:        e.Context.Channel(),
		ChannelID:      e.ChannelID(),
		Arguments:      args,
		ResolvePermission: func(ctx context.Context) (domain.Permission, error) {
			return e.Permission(ctx)
		},
	}
}
