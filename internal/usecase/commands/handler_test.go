package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"polybot/internal/domain"
	"polybot/internal/usecase/template"
)

type fakeStore struct {
	domain.Store

	mu       sync.Mutex
	users    map[domain.UserIdentifier]int64
	nextUser int64
	channels map[string]int64
	nextChan int64
	commands map[string]*domain.Command // key: channelKey + " " + name
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[domain.UserIdentifier]int64),
		channels: make(map[string]int64),
		commands: make(map[string]*domain.Command),
	}
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, id domain.UserIdentifier) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.users[id]
	if !ok {
		f.nextUser++
		uid = f.nextUser
		f.users[id] = uid
	}
	user := domain.User{ID: uid}
	switch id.Platform {
	case domain.PlatformTwitch:
		user.TwitchID = id.ID
	case domain.PlatformIRC:
		user.IrcName = id.ID
	case domain.PlatformLocal:
		user.LocalAddr = id.ID
	}
	return user, nil
}

func (f *fakeStore) GetOrCreateChannel(_ context.Context, id domain.ChannelIdentifier) (*domain.Channel, error) {
	if id.IsAnonymous() {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := id.Canonical()
	cid, ok := f.channels[key]
	if !ok {
		f.nextChan++
		cid = f.nextChan
		f.channels[key] = cid
	}
	return &domain.Channel{ID: cid, Platform: string(id.Kind), Channel: id.ID}, nil
}

func (f *fakeStore) GetCommand(_ context.Context, channel domain.ChannelIdentifier, name string) (*domain.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[channel.Canonical()+" "+name], nil
}

func (f *fakeStore) GetCommands(_ context.Context, channelID int64) ([]domain.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Command
	for _, cmd := range f.commands {
		if cmd.ChannelID == channelID {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

func (f *fakeStore) AddCommand(ctx context.Context, channel domain.ChannelIdentifier, name, action string) error {
	ch, err := f.GetOrCreateChannel(ctx, channel)
	if err != nil {
		return err
	}
	if ch == nil {
		return domain.ErrAnonymousChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := channel.Canonical() + " " + name
	if _, exists := f.commands[key]; exists {
		return domain.ErrCommandExists
	}
	f.commands[key] = &domain.Command{ChannelID: ch.ID, Name: name, Action: action}
	return nil
}

func (f *fakeStore) DeleteCommand(_ context.Context, channel domain.ChannelIdentifier, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := channel.Canonical() + " " + name
	if _, exists := f.commands[key]; !exists {
		return domain.ErrCommandNotFound
	}
	delete(f.commands, key)
	return nil
}

func (f *fakeStore) GetMirrorConnections(context.Context) ([]domain.MirrorConnection, error) {
	return nil, nil
}

// putCommand installs a custom command directly, bypassing permissions.
func (f *fakeStore) putCommand(channel domain.ChannelIdentifier, cmd *domain.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel.Canonical()] = cmd.ChannelID
	if cmd.ChannelID > f.nextChan {
		f.nextChan = cmd.ChannelID
	}
	f.commands[channel.Canonical()+" "+cmd.Name] = cmd
}

type countingBuiltin struct {
	name  string
	perm  domain.Permission
	mu    sync.Mutex
	calls int
}

func (c *countingBuiltin) Name() string                          { return c.name }
func (c *countingBuiltin) Aliases() []string                     { return nil }
func (c *countingBuiltin) RequiredPermission() domain.Permission { return c.perm }
func (c *countingBuiltin) Cooldown() time.Duration               { return defaultCooldown }

func (c *countingBuiltin) Execute(context.Context, *Execution) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "ok", nil
}

func (c *countingBuiltin) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func ircContext(nick string) fakeExecutionContext {
	return fakeExecutionContext{
		user:    domain.UserIdentifier{Platform: domain.PlatformIRC, ID: nick},
		channel: domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: "#chan"},
		name:    nick,
	}
}

func localContext() fakeExecutionContext {
	return fakeExecutionContext{
		user:    domain.UserIdentifier{Platform: domain.PlatformLocal, ID: "127.0.0.1"},
		channel: domain.ChannelIdentifier{Kind: domain.ChannelLocal, ID: "127.0.0.1"},
		name:    "local",
	}
}

func newTestHandler(store *fakeStore, builtins ...Builtin) *Handler {
	engine := template.NewEngine(template.EngineDeps{Store: store, Log: zap.NewNop()})
	return NewHandler(HandlerDeps{
		Store:    store,
		Resolver: NewPermissionResolver(domain.UserIdentifier{}, nil, nil),
		Engine:   engine,
		Builtins: builtins,
		Log:      zap.NewNop(),
	})
}

func TestHandleMessageUnknownCommandIsSilent(t *testing.T) {
	h := newTestHandler(newFakeStore())

	if got := h.HandleMessage(context.Background(), "!nosuchcommand", ircContext("nick")); got != "" {
		t.Fatalf("got %q, want silence", got)
	}
}

func TestHandleMessageIgnoresUnprefixedText(t *testing.T) {
	counting := &countingBuiltin{name: "ping"}
	h := newTestHandler(newFakeStore(), counting)

	if got := h.HandleMessage(context.Background(), "ping", ircContext("nick")); got != "" {
		t.Fatalf("got %q, want silence", got)
	}
	if counting.count() != 0 {
		t.Fatal("builtin ran without a prefix")
	}
}

func TestHandleMessageCustomCommandArguments(t *testing.T) {
	store := newFakeStore()
	channel := domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: "#chan"}
	store.putCommand(channel, &domain.Command{ChannelID: 1, Name: "hello", Action: "Hi {{arguments.[0]}}!"})
	h := newTestHandler(store)

	got := h.HandleMessage(context.Background(), "!hello World", ircContext("nick"))
	if got != "Hi World!" {
		t.Fatalf("got %q, want %q", got, "Hi World!")
	}
}

func TestHandleMessageCooldownSuppresses(t *testing.T) {
	counting := &countingBuiltin{name: "ping"}
	h := newTestHandler(newFakeStore(), counting)
	ec := ircContext("nick")

	if got := h.HandleMessage(context.Background(), "!ping", ec); got != "ok" {
		t.Fatalf("first call: got %q", got)
	}
	if got := h.HandleMessage(context.Background(), "!ping", ec); got != "" {
		t.Fatalf("second call should be suppressed, got %q", got)
	}
	if counting.count() != 1 {
		t.Fatalf("builtin ran %d times, want 1", counting.count())
	}

	// Cooldowns are per user.
	if got := h.HandleMessage(context.Background(), "!ping", ircContext("other")); got != "ok" {
		t.Fatalf("other user: got %q", got)
	}
}

func TestHandleMessageZeroCooldownNeverSuppresses(t *testing.T) {
	store := newFakeStore()
	channel := domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: "#chan"}
	zero := 0
	store.putCommand(channel, &domain.Command{ChannelID: 1, Name: "spam", Action: "yes", Cooldown: &zero})
	h := newTestHandler(store)
	ec := ircContext("nick")

	for i := 0; i < 3; i++ {
		if got := h.HandleMessage(context.Background(), "!spam", ec); got != "yes" {
			t.Fatalf("call %d: got %q", i, got)
		}
	}
}

func TestHandleMessagePermissionDenied(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, NewCmdBuiltin(store, "https://bot.example"))

	got := h.HandleMessage(context.Background(), "!addcmd hello hi", ircContext("nick"))
	if !strings.HasPrefix(got, "Error:") || !strings.Contains(got, "permissions") {
		t.Fatalf("got %q, want a permissions error", got)
	}
}

func TestHandleMessageCmdLifecycle(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, NewCmdBuiltin(store, "https://bot.example"))
	ec := localContext() // channel owner

	if got := h.HandleMessage(context.Background(), "!addcmd greet Hi {{arguments.[0]}}!", ec); got != "Command added" {
		t.Fatalf("add: got %q", got)
	}
	if got := h.HandleMessage(context.Background(), "!addcmd greet again", ec); got != "Command name already exists" {
		t.Fatalf("duplicate add: got %q", got)
	}
	if got := h.HandleMessage(context.Background(), "!greet World", ec); got != "Hi World!" {
		t.Fatalf("run: got %q", got)
	}
	if got := h.HandleMessage(context.Background(), "!delcmd greet", ec); got != "Command deleted" {
		t.Fatalf("delete: got %q", got)
	}
	if got := h.HandleMessage(context.Background(), "!delcmd greet", ec); got != "Command not found" {
		t.Fatalf("delete missing: got %q", got)
	}
}

func TestHandleMessageCmdBareReturnsListLink(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, NewCmdBuiltin(store, "https://bot.example"))

	got := h.HandleMessage(context.Background(), "!commands", ircContext("nick"))
	if !strings.HasSuffix(got, "/commands") || !strings.Contains(got, "https://bot.example/channels/") {
		t.Fatalf("got %q, want a command list link", got)
	}
}

func TestHandleMessageShellFailsClosed(t *testing.T) {
	store := newFakeStore()
	admin := domain.UserIdentifier{Platform: domain.PlatformIRC, ID: "boss"}
	engine := template.NewEngine(template.EngineDeps{Store: store, Log: zap.NewNop()})
	h := NewHandler(HandlerDeps{
		Store:    store,
		Resolver: NewPermissionResolver(admin, nil, nil),
		Engine:   engine,
		Builtins: []Builtin{NewShellBuiltin(false)},
		Log:      zap.NewNop(),
	})

	got := h.HandleMessage(context.Background(), "!shell echo hacked", ircContext("boss"))
	if !strings.HasPrefix(got, "Error:") || !strings.Contains(got, "disabled") {
		t.Fatalf("got %q, want shell disabled error", got)
	}

	// Non-admins are rejected before the opt-in check.
	got = h.HandleMessage(context.Background(), "!sh echo hacked", ircContext("nick"))
	if !strings.HasPrefix(got, "Error:") || !strings.Contains(got, "permissions") {
		t.Fatalf("got %q, want permissions error", got)
	}
}

func TestHandleMessageErrorConversion(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, NewCmdBuiltin(store, "https://bot.example"))

	got := h.HandleMessage(context.Background(), "!cmd show", localContext())
	if !strings.HasPrefix(got, "Error: missing argument") {
		t.Fatalf("got %q, want missing argument error", got)
	}
}

func TestHandleMessageTriggerPhrase(t *testing.T) {
	store := newFakeStore()
	channel := domain.ChannelIdentifier{Kind: domain.ChannelIRC, ID: "#chan"}
	store.putCommand(channel, &domain.Command{
		ChannelID: 1,
		Name:      "greeting",
		Action:    "hello {{username}}",
		Triggers:  []string{"hey bot"},
	})
	h := newTestHandler(store)

	got := h.HandleMessage(context.Background(), "hey bot how are you", ircContext("nick"))
	if got != "hello nick" {
		t.Fatalf("got %q", got)
	}

	if got := h.HandleMessage(context.Background(), "unrelated chatter", ircContext("nick")); got != "" {
		t.Fatalf("got %q, want silence", got)
	}
}

type failingCommandsStore struct {
	*fakeStore
}

func (f *failingCommandsStore) GetCommands(context.Context, int64) ([]domain.Command, error) {
	return nil, errors.New("database is locked")
}

func TestHandleMessageTriggerPhraseStoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &failingCommandsStore{fakeStore: newFakeStore()}
	engine := template.NewEngine(template.EngineDeps{Store: store, Log: zap.NewNop()})
	h := NewHandler(HandlerDeps{
		Store:    store,
		Resolver: NewPermissionResolver(domain.UserIdentifier{}, nil, nil),
		Engine:   engine,
		Log:      zap.New(core),
	})

	// Non-command chatter stays silent, but the failure must be visible in
	// the logs.
	if got := h.HandleMessage(context.Background(), "just chatter", ircContext("nick")); got != "" {
		t.Fatalf("got %q, want silence", got)
	}
	if logs.FilterMessage("trigger phrase command load failed").Len() != 1 {
		t.Fatalf("want one warning, got %v", logs.All())
	}
}

func TestHandleMessageBuiltinNameIgnoresCase(t *testing.T) {
	counting := &countingBuiltin{name: "ping"}
	h := newTestHandler(newFakeStore(), counting)

	if got := h.HandleMessage(context.Background(), "!PING", ircContext("nick")); got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if counting.count() != 1 {
		t.Fatalf("builtin ran %d times, want 1", counting.count())
	}
}
