package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/metrics"
	"polybot/internal/usecase/commands/cmderr"
	"polybot/internal/usecase/template"
)

const defaultCooldown = 5 * time.Second

// Handler is the dispatch pipeline every platform message flows through:
// mirroring, prefix and trigger-phrase matching, cooldowns, permissions,
// builtin or custom execution, and error-to-response conversion.
type Handler struct {
	store     domain.Store
	resolver  *PermissionResolver
	cooldowns *CooldownTracker
	engine    *template.Engine
	metrics   *metrics.Metrics
	sender    domain.ChannelSender
	builtins  *builtinTable
	log       *zap.Logger

	mirrors map[int64][]int64
}

type HandlerDeps struct {
	Store    domain.Store
	Resolver *PermissionResolver
	Engine   *template.Engine
	Metrics  *metrics.Metrics
	Sender   domain.ChannelSender
	Builtins []Builtin
	Log      *zap.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		store:     deps.Store,
		resolver:  deps.Resolver,
		cooldowns: NewCooldownTracker(),
		engine:    deps.Engine,
		metrics:   deps.Metrics,
		sender:    deps.Sender,
		builtins:  newBuiltinTable(deps.Builtins...),
		log:       deps.Log,
		mirrors:   make(map[int64][]int64),
	}
}

// LoadMirrors reads the configured mirror connections. Called once at
// startup; mirroring is disabled until then.
func (h *Handler) LoadMirrors(ctx context.Context) error {
	connections, err := h.store.GetMirrorConnections(ctx)
	if err != nil {
		return err
	}
	mirrors := make(map[int64][]int64, len(connections))
	for _, c := range connections {
		mirrors[c.FromChannelID] = append(mirrors[c.FromChannelID], c.ToChannelID)
	}
	h.mirrors = mirrors
	return nil
}

// HandleMessage processes one raw platform message and returns the text to
// send back, or "" for no response. Failures come back as "Error: ..."
// responses; unknown commands and cooldown suppression stay silent.
func (h *Handler) HandleMessage(ctx context.Context, text string, ec ExecutionContext) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	h.mirror(ctx, text, ec)

	for _, prefix := range ec.Prefixes() {
		if !strings.HasPrefix(text, prefix) {
			continue
		}
		response, err := h.HandleCommandMessage(ctx, strings.TrimSpace(strings.TrimPrefix(text, prefix)), ec)
		if err != nil {
			h.log.Warn("command failed",
				zap.String("channel", ec.Channel().Canonical()),
				zap.String("user", ec.UserIdentifier().String()),
				zap.Error(err))
			return "Error: " + err.Error()
		}
		return response
	}

	response, err := h.handleTriggerPhrases(ctx, text, ec)
	if err != nil {
		return "Error: " + err.Error()
	}
	return response
}

// HandleCommandMessage runs an already prefix-stripped command line.
func (h *Handler) HandleCommandMessage(ctx context.Context, message string, ec ExecutionContext) (string, error) {
	parts := strings.Fields(message)
	if len(parts) == 0 {
		return "", nil
	}
	name, args := parts[0], parts[1:]

	user, err := h.store.GetOrCreateUser(ctx, ec.UserIdentifier())
	if err != nil {
		return "", cmderr.Database(err)
	}
	if h.cooldowns.IsSuppressed(user.ID, strings.ToLower(name)) {
		return "", nil
	}

	if builtin, ok := h.builtins.lookup(name); ok {
		return h.executeBuiltin(ctx, builtin, name, args, user, ec)
	}

	command, err := h.store.GetCommand(ctx, ec.Channel(), name)
	if err != nil {
		return "", cmderr.Database(err)
	}
	if command == nil {
		return "", nil
	}
	return h.executeCustom(ctx, command, name, args, user, ec)
}

// RunAction renders a template action outside the command tables, for
// EventSub redeems and other server-side triggers.
func (h *Handler) RunAction(ctx context.Context, action string, args []string, ec ExecutionContext) (string, error) {
	user, err := h.store.GetOrCreateUser(ctx, ec.UserIdentifier())
	if err != nil {
		return "", cmderr.Database(err)
	}
	exec, err := h.newExecution(ctx, "", args, user, ec)
	if err != nil {
		return "", err
	}
	out, err := h.engine.Render(ctx, action, exec.Inquiry(nil))
	if err != nil {
		return "", cmderr.TemplateRender(err)
	}
	return out, nil
}

func (h *Handler) executeBuiltin(ctx context.Context, builtin Builtin, name string, args []string, user domain.User, ec ExecutionContext) (string, error) {
	exec, err := h.newExecution(ctx, name, args, user, ec)
	if err != nil {
		return "", err
	}

	if required := builtin.RequiredPermission(); required > domain.PermissionDefault {
		perm, err := exec.Permission(ctx)
		if err != nil {
			return "", err
		}
		if perm < required {
			return "", cmderr.NoPermissions(required)
		}
	}

	started := time.Now()
	response, err := builtin.Execute(ctx, exec)
	h.observe(builtin.Name(), ec, err == nil, time.Since(started))
	h.cooldowns.Arm(user.ID, strings.ToLower(name), builtin.Cooldown())
	return response, err
}

func (h *Handler) executeCustom(ctx context.Context, command *domain.Command, name string, args []string, user domain.User, ec ExecutionContext) (string, error) {
	exec, err := h.newExecution(ctx, name, args, user, ec)
	if err != nil {
		return "", err
	}

	if command.Permission != nil {
		perm, err := exec.Permission(ctx)
		if err != nil {
			return "", err
		}
		if perm < *command.Permission {
			return "", cmderr.NoPermissions(*command.Permission)
		}
	}

	started := time.Now()
	response, err := h.engine.Render(ctx, command.Action, exec.Inquiry(nil))
	h.observe(command.Name, ec, err == nil, time.Since(started))

	cooldown := defaultCooldown
	if command.Cooldown != nil {
		cooldown = time.Duration(*command.Cooldown) * time.Second
	}
	h.cooldowns.Arm(user.ID, strings.ToLower(name), cooldown)

	if err != nil {
		return "", cmderr.TemplateRender(err)
	}
	return response, nil
}

func (h *Handler) newExecution(ctx context.Context, name string, args []string, user domain.User, ec ExecutionContext) (*Execution, error) {
	channelRow, err := h.store.GetOrCreateChannel(ctx, ec.Channel())
	if err != nil {
		return nil, cmderr.Database(err)
	}
	return &Execution{
		Context:    ec,
		User:       user,
		ChannelRow: channelRow,
		InvokedAs:  name,
		Arguments:  args,
		resolvePerm: func(ctx context.Context) (domain.Permission, error) {
			return h.resolver.Resolve(ctx, user, ec)
		},
	}, nil
}

// handleTriggerPhrases runs a custom command when the raw message starts
// with one of its trigger phrases. The remainder becomes the arguments.
func (h *Handler) handleTriggerPhrases(ctx context.Context, text string, ec ExecutionContext) (string, error) {
	channelRow, err := h.store.GetOrCreateChannel(ctx, ec.Channel())
	if err != nil {
		h.log.Warn("trigger phrase channel lookup failed",
			zap.String("channel", ec.Channel().Canonical()),
			zap.Error(err))
		return "", nil
	}
	if channelRow == nil {
		return "", nil
	}
	commands, err := h.store.GetCommands(ctx, channelRow.ID)
	if err != nil {
		h.log.Warn("trigger phrase command load failed",
			zap.Int64("channel", channelRow.ID),
			zap.Error(err))
		return "", nil
	}

	lower := strings.ToLower(text)
	for i := range commands {
		for _, phrase := range commands[i].Triggers {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" || !strings.HasPrefix(lower, strings.ToLower(phrase)) {
				continue
			}
			user, err := h.store.GetOrCreateUser(ctx, ec.UserIdentifier())
			if err != nil {
				return "", cmderr.Database(err)
			}
			if h.cooldowns.IsSuppressed(user.ID, strings.ToLower(commands[i].Name)) {
				return "", nil
			}
			args := strings.Fields(text[len(phrase):])
			return h.executeCustom(ctx, &commands[i], commands[i].Name, args, user, ec)
		}
	}
	return "", nil
}

// mirror re-posts the message into the configured target channels. Best
// effort: delivery failures are logged, never surfaced to the source channel.
func (h *Handler) mirror(ctx context.Context, text string, ec ExecutionContext) {
	if len(h.mirrors) == 0 || h.sender == nil {
		return
	}
	channelRow, err := h.store.GetOrCreateChannel(ctx, ec.Channel())
	if err != nil || channelRow == nil {
		return
	}
	targets, ok := h.mirrors[channelRow.ID]
	if !ok {
		return
	}

	message := fmt.Sprintf("%s: %s", ec.DisplayName(), text)
	for _, target := range targets {
		targetRow, err := h.store.GetChannelByID(ctx, target)
		if err != nil || targetRow == nil {
			continue
		}
		if err := h.sender.SendToChannel(ctx, targetRow.Identifier(), message); err != nil {
			h.log.Warn("mirror delivery failed",
				zap.Int64("target", target),
				zap.Error(err))
		}
	}
}

func (h *Handler) observe(command string, ec ExecutionContext, success bool, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.ObserveCommand(command, ec.Channel().Canonical(), success, elapsed)
}
