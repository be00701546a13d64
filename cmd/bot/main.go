package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"polybot/internal/domain"
	"polybot/internal/infrastructure/api"
	"polybot/internal/infrastructure/config"
	"polybot/internal/infrastructure/persistence/sqlite"
	discordinfra "polybot/internal/infrastructure/platform/discord"
	twitchinfra "polybot/internal/infrastructure/platform/twitch"
	discordadapter "polybot/internal/interface/adapters/discord"
	ircadapter "polybot/internal/interface/adapters/irc"
	localadapter "polybot/internal/interface/adapters/local"
	telegramadapter "polybot/internal/interface/adapters/telegram"
	twitchadapter "polybot/internal/interface/adapters/twitch"
	"polybot/internal/interface/api/httpapi"
	"polybot/internal/interface/outs"
	"polybot/internal/metrics"
	"polybot/internal/usecase/commands"
	"polybot/internal/usecase/script"
	"polybot/internal/usecase/template"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("bot exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := sqlite.NewStore(cfg.DatabasePath, log.Named("sqlite"))
	if err != nil {
		return err
	}
	defer store.Close()

	// Platform services.
	var twitchSvc *twitchinfra.Service
	if cfg.TwitchConfigured() {
		twitchSvc, err = twitchinfra.NewService(cfg.TwitchClientID, cfg.TwitchAPIToken, log.Named("helix"))
		if err != nil {
			return err
		}
		twitchSvc.StartCacheInvalidation(ctx)
	}

	var discordSession *discordgo.Session
	var discordSvc *discordinfra.Service
	if cfg.DiscordToken != "" {
		discordSession, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return err
		}
		discordSvc = discordinfra.NewService(discordSession, log.Named("discord"))
		discordSvc.StartCacheInvalidation(ctx)
	}

	// Script sandbox with optional git-backed modules.
	var storage *script.ModuleStorage
	if cfg.ScriptModulesGitURL != "" {
		storage, err = script.OpenModuleStorage(ctx, cfg.ScriptModulesGitURL, cfg.ScriptModulesDir, log.Named("modules"))
		if err != nil {
			return err
		}
	}
	var moduleSource script.ModuleSource
	if storage != nil {
		moduleSource = storage
	}
	evaluator := script.NewEvaluator(moduleSource, store, script.DefaultTimeout, log.Named("script"))

	multiOut := outs.NewMultiSender()

	// Template engine with the helper backends that are configured.
	engineDeps := template.EngineDeps{
		Store:  store,
		Sender: multiOut,
		Script: evaluator,
		Log:    log.Named("template"),
	}
	if twitchSvc != nil && cfg.TwitchBotUserID != "" {
		engineDeps.Mod = twitchModerator{svc: twitchSvc, moderatorID: cfg.TwitchBotUserID}
	}
	if cfg.SpotifyClientID != "" {
		engineDeps.Spotify = api.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}
	if cfg.LastFMAPIKey != "" {
		engineDeps.LastFM = api.NewLastFMClient(cfg.LastFMAPIKey)
	}
	if cfg.OwmAPIKey != "" {
		engineDeps.Weather = api.NewOwmClient(cfg.OwmAPIKey)
	}
	if cfg.FinnhubAPIKey != "" {
		engineDeps.Finnhub = api.NewFinnhubClient(cfg.FinnhubAPIKey)
	}
	if cfg.LingvaURL != "" {
		engineDeps.Lingva = api.NewLingvaClient(cfg.LingvaURL)
	}
	engine := template.NewEngine(engineDeps)

	var admin domain.UserIdentifier
	if cfg.AdminUser != "" {
		admin, err = domain.ParseUserIdentifier(cfg.AdminUser)
		if err != nil {
			return err
		}
	}

	var modSource commands.TwitchModSource
	var adminSource commands.DiscordAdminSource
	var esManager commands.EventSubManager
	if twitchSvc != nil {
		modSource = twitchSvc
		esManager = twitchSvc
	}
	if discordSvc != nil {
		adminSource = discordSvc
	}

	var reloader commands.ModuleReloader
	if storage != nil {
		reloader = storage
	}

	m := metrics.New()
	handler := commands.NewHandler(commands.HandlerDeps{
		Store:    store,
		Resolver: commands.NewPermissionResolver(admin, modSource, adminSource),
		Engine:   engine,
		Metrics:  m,
		Sender:   multiOut,
		Builtins: []commands.Builtin{
			commands.NewPingBuiltin(),
			commands.NewWhoamiBuiltin(),
			commands.NewCmdBuiltin(store, cfg.BaseURL),
			commands.NewEventSubBuiltin(store, esManager, cfg.BaseURL, cfg.EventSubSecret),
			commands.NewDebugBuiltin(engine),
			commands.NewShellBuiltin(cfg.AllowShell),
			commands.NewScriptBuiltin(evaluator),
			commands.NewReloadBuiltin(reloader),
		},
		Log: log.Named("dispatch"),
	})
	if err := handler.LoadMirrors(ctx); err != nil {
		return err
	}

	if twitchSvc != nil {
		resyncEventSub(ctx, store, twitchSvc, cfg.BaseURL, cfg.EventSubSecret, log)
	}

	group, ctx := errgroup.WithContext(ctx)

	if cfg.TwitchUsername != "" && cfg.TwitchToken != "" {
		adapter := twitchadapter.NewAdapter(twitchadapter.Config{
			Username:   cfg.TwitchUsername,
			OAuthToken: cfg.TwitchToken,
			Channels:   cfg.TwitchChannels,
			Prefix:     cfg.CommandPrefix,
		}, handler, twitchSvc, log.Named("twitch"))
		multiOut.Register(domain.ChannelTwitch, adapter)
		group.Go(func() error { return adapter.Start(ctx) })
	}

	if discordSession != nil {
		adapter := discordadapter.NewAdapter(discordSession, handler, cfg.CommandPrefix, log.Named("discord"))
		multiOut.Register(domain.ChannelDiscordGuild, adapter)
		group.Go(func() error { return adapter.Start(ctx) })
	}

	if cfg.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return err
		}
		adapter := telegramadapter.NewAdapter(bot, handler, cfg.CommandPrefix, log.Named("telegram"))
		multiOut.Register(domain.ChannelTelegram, adapter)
		group.Go(func() error { return adapter.Start(ctx) })
	}

	if cfg.IrcServer != "" {
		adapter := ircadapter.NewAdapter(ircadapter.Config{
			Server:   cfg.IrcServer,
			Port:     cfg.IrcPort,
			Nick:     cfg.IrcNick,
			Password: cfg.IrcPassword,
			TLS:      cfg.IrcTLS,
			Channels: cfg.IrcChannels,
			Prefix:   cfg.CommandPrefix,
		}, handler, log.Named("irc"))
		multiOut.Register(domain.ChannelIRC, adapter)
		group.Go(func() error { return adapter.Start(ctx) })
	}

	if cfg.LocalAddr != "" {
		adapter := localadapter.NewAdapter(cfg.LocalAddr, handler, log.Named("local"))
		multiOut.Register(domain.ChannelLocal, adapter)
		group.Go(func() error { return adapter.Start(ctx) })
	}

	server := httpapi.NewServer(httpapi.ServerDeps{
		Addr:           cfg.HTTPAddr,
		Store:          store,
		Dispatcher:     handler,
		Sender:         multiOut,
		Registry:       m.Registry,
		EventSubSecret: cfg.EventSubSecret,
		Log:            log.Named("http"),
	})
	group.Go(func() error { return server.Start(ctx) })

	log.Info("bot started")
	return group.Wait()
}

// twitchModerator adapts the Helix service to the template timeout helper by
// fixing the bot's own identity as the acting moderator.
type twitchModerator struct {
	svc         *twitchinfra.Service
	moderatorID string
}

func (m twitchModerator) TimeoutUser(ctx context.Context, broadcasterID, userID string, duration int, reason string) error {
	return m.svc.TimeoutUser(ctx, broadcasterID, m.moderatorID, userID,
		time.Duration(duration)*time.Second, reason)
}

// resyncEventSub re-creates the persisted EventSub subscriptions that Twitch
// no longer knows about, updating the stored subscription ids.
func resyncEventSub(ctx context.Context, store domain.Store, svc *twitchinfra.Service, baseURL, secret string, log *zap.Logger) {
	if secret == "" {
		return
	}
	triggers, err := store.GetEventSubTriggers(ctx)
	if err != nil {
		log.Warn("eventsub trigger load failed", zap.Error(err))
		return
	}
	if len(triggers) == 0 {
		return
	}

	active, err := svc.GetEventSubSubscriptions(ctx)
	if err != nil {
		log.Warn("eventsub subscription list failed", zap.Error(err))
		return
	}
	known := make(map[string]bool, len(active))
	for _, sub := range active {
		known[sub.ID] = true
	}

	callback := baseURL + "/hooks/eventsub"
	for _, trigger := range triggers {
		if known[trigger.ID] {
			continue
		}
		newID, err := svc.CreateEventSubSubscription(ctx, trigger.EventType, trigger.BroadcasterID, callback, secret)
		if err != nil {
			log.Warn("eventsub resubscribe failed",
				zap.String("type", trigger.EventType),
				zap.String("broadcaster", trigger.BroadcasterID),
				zap.Error(err))
			continue
		}
		if err := store.UpdateEventSubTriggerID(ctx, trigger.ID, newID); err != nil {
			log.Warn("eventsub id update failed", zap.Error(err))
		}
	}
}
