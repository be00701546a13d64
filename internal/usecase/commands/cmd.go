package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands/cmderr"
)

// CmdBuiltin manages the channel's custom commands. The management verbs can
// be spelled either as subcommands ("cmd add ...") or through the aliases
// ("addcmd ..."); a bare invocation links to the web command list.
type CmdBuiltin struct {
	store   domain.Store
	baseURL string
}

func NewCmdBuiltin(store domain.Store, baseURL string) *CmdBuiltin {
	return &CmdBuiltin{store: store, baseURL: baseURL}
}

func (c *CmdBuiltin) Name() string { return "cmd" }

func (c *CmdBuiltin) Aliases() []string {
	return []string{"addcmd", "delcmd", "editcmd", "showcmd", "help", "commands"}
}

func (c *CmdBuiltin) RequiredPermission() domain.Permission { return domain.PermissionDefault }
func (c *CmdBuiltin) Cooldown() time.Duration               { return 0 }

// aliasVerbs maps each alias to the subcommand it stands for.
var aliasVerbs = map[string]string{
	"addcmd":   "add",
	"delcmd":   "delete",
	"editcmd":  "edit",
	"showcmd":  "show",
	"help":     "",
	"commands": "",
}

func (c *CmdBuiltin) Execute(ctx context.Context, exec *Execution) (string, error) {
	verb := ""
	args := exec.Arguments
	if mapped, ok := aliasVerbs[strings.ToLower(exec.InvokedAs)]; ok {
		verb = mapped
	} else if len(args) > 0 {
		verb = strings.ToLower(args[0])
		args = args[1:]
	}

	if verb == "" {
		return c.commandList(exec)
	}

	switch verb {
	case "add":
		return c.mutate(ctx, exec, args, 2, func(name string, rest []string) (string, error) {
			err := c.store.AddCommand(ctx, exec.Context.Channel(), name, strings.Join(rest, " "))
			if errors.Is(err, domain.ErrCommandExists) {
				return "Command name already exists", nil
			}
			if err != nil {
				return "", cmderr.Database(err)
			}
			return "Command added", nil
		})
	case "delete", "remove":
		return c.mutate(ctx, exec, args, 1, func(name string, _ []string) (string, error) {
			err := c.store.DeleteCommand(ctx, exec.Context.Channel(), name)
			if errors.Is(err, domain.ErrCommandNotFound) {
				return "Command not found", nil
			}
			if err != nil {
				return "", cmderr.Database(err)
			}
			return "Command deleted", nil
		})
	case "edit", "update":
		return c.mutate(ctx, exec, args, 2, func(name string, rest []string) (string, error) {
			if err := c.store.UpdateCommand(ctx, exec.Context.Channel(), name, strings.Join(rest, " ")); err != nil {
				return "", cmderr.Database(err)
			}
			return "Command updated", nil
		})
	case "show":
		return c.show(ctx, exec, args)
	case "set_triggers":
		return c.mutate(ctx, exec, args, 2, func(name string, rest []string) (string, error) {
			if exec.ChannelID() == 0 {
				return "", cmderr.Generic(domain.ErrAnonymousChannel)
			}
			err := c.store.SetCommandTriggers(ctx, exec.ChannelID(), name, strings.Join(rest, " "))
			return c.mutationResult("Triggers updated", err)
		})
	case "get_triggers":
		return c.getTriggers(ctx, exec, args)
	case "set_cooldown":
		return c.mutate(ctx, exec, args, 2, func(name string, rest []string) (string, error) {
			seconds, err := strconv.Atoi(rest[0])
			if err != nil || seconds < 0 {
				return "", cmderr.InvalidArgument(rest[0])
			}
			if exec.ChannelID() == 0 {
				return "", cmderr.Generic(domain.ErrAnonymousChannel)
			}
			return c.mutationResult("Cooldown updated",
				c.store.SetCommandCooldown(ctx, exec.ChannelID(), name, seconds))
		})
	case "set_permission":
		return c.mutate(ctx, exec, args, 2, func(name string, rest []string) (string, error) {
			perm, err := domain.ParsePermission(rest[0])
			if err != nil {
				return "", cmderr.InvalidArgument(rest[0])
			}
			if exec.ChannelID() == 0 {
				return "", cmderr.Generic(domain.ErrAnonymousChannel)
			}
			return c.mutationResult("Permission updated",
				c.store.SetCommandPermission(ctx, exec.ChannelID(), name, perm))
		})
	default:
		return "", cmderr.InvalidArgument(verb)
	}
}

func (c *CmdBuiltin) mutationResult(ok string, err error) (string, error) {
	if errors.Is(err, domain.ErrCommandNotFound) {
		return "Command not found", nil
	}
	if err != nil {
		return "", cmderr.Database(err)
	}
	return ok, nil
}

// mutate runs fn after checking argument count and the ChannelMod floor all
// mutating verbs share.
func (c *CmdBuiltin) mutate(ctx context.Context, exec *Execution, args []string, minArgs int,
	fn func(name string, rest []string) (string, error)) (string, error) {

	perm, err := exec.Permission(ctx)
	if err != nil {
		return "", err
	}
	if perm < domain.PermissionChannelMod {
		return "", cmderr.NoPermissions(domain.PermissionChannelMod)
	}
	if len(args) < minArgs {
		return "", cmderr.MissingArgument("command name")
	}
	return fn(args[0], args[1:])
}

func (c *CmdBuiltin) show(ctx context.Context, exec *Execution, args []string) (string, error) {
	if len(args) < 1 {
		return "", cmderr.MissingArgument("command name")
	}
	cmd, err := c.store.GetCommand(ctx, exec.Context.Channel(), args[0])
	if err != nil {
		return "", cmderr.Database(err)
	}
	if cmd == nil {
		return "Command not found", nil
	}
	return fmt.Sprintf("%s: %s", cmd.Name, cmd.Action), nil
}

func (c *CmdBuiltin) getTriggers(ctx context.Context, exec *Execution, args []string) (string, error) {
	if len(args) < 1 {
		return "", cmderr.MissingArgument("command name")
	}
	cmd, err := c.store.GetCommand(ctx, exec.Context.Channel(), args[0])
	if err != nil {
		return "", cmderr.Database(err)
	}
	if cmd == nil {
		return "Command not found", nil
	}
	if len(cmd.Triggers) == 0 {
		return "No triggers set", nil
	}
	return strings.Join(cmd.Triggers, "; "), nil
}

func (c *CmdBuiltin) commandList(exec *Execution) (string, error) {
	if c.baseURL == "" {
		return "", cmderr.Configuration("no base url configured")
	}
	if exec.ChannelID() == 0 {
		return "", cmderr.Generic(domain.ErrAnonymousChannel)
	}
	return fmt.Sprintf("Command list: %s/channels/%d/commands",
		strings.TrimRight(c.baseURL, "/"), exec.ChannelID()), nil
}
